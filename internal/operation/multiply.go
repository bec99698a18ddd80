package operation

func init() {
	register(Operation{
		Name:        "multiply",
		Description: "multiplies two integers",
		Execute: func(a, b int) (int, error) {
			return a * b, nil
		},
	})
}
