package tools

// Builtins returns the utility tools in declaration order.
func Builtins(env *Env) []Tool {
	return []Tool{
		Clock(env),
		Calculator(),
		Search(env),
		Weather(env),
		Wikipedia(env),
		Sentiment(),
		FetchURL(env),
		JSONPretty(),
	}
}

// NewBuiltinRegistry registers every built-in tool.
func NewBuiltinRegistry(env *Env) (*Registry, error) {
	return NewRegistry(Builtins(env)...)
}
