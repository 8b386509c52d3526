package mongodb

const (
	ClientsCollection       = "oauth_clients"
	ScopesCollection        = "oauth_scopes"
	TokensCollection        = "oauth_access_tokens"
	RefreshTokensCollection = "oauth_refresh_tokens"
	CodesCollection         = "oauth_auth_codes"
	UsersCollection         = "oauth_users"
)
