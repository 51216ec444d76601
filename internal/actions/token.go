package actions

// TokenEnvVars are consulted in order when no token is given explicitly.
var TokenEnvVars = []string{"GITHUB_TOKEN", "GITHUB_ACCESS_TOKEN"}

// ResolveToken returns explicit if set, else the first non-empty variable
// of TokenEnvVars.
func ResolveToken(explicit string, getenv func(string) string) string {
	if explicit != "" {
		return explicit
	}
	for _, key := range TokenEnvVars {
		if v := getenv(key); v != "" {
			return v
		}
	}
	return ""
}
