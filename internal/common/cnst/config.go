package cnst

const (
	TetherYaml     = "tether.yaml"
	MockServerYaml = "mock-auth-svc.yaml"
)

const (
	RedisClusterTypeSentinel = "sentinel"
	RedisClusterTypeCluster  = "cluster"
	RedisClusterTypeSingle   = "single"
)

// Credential keys held by the credential store
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
)
