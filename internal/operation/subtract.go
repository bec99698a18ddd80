package operation

func init() {
	register(Operation{
		Name:        "subtract",
		Description: "subtracts the second integer from the first",
		Execute: func(a, b int) (int, error) {
			return a - b, nil
		},
	})
}
