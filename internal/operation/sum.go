package operation

func init() {
	register(Operation{
		Name:        "sum",
		Description: "adds two integers",
		Execute: func(a, b int) (int, error) {
			return a + b, nil
		},
	})
}
