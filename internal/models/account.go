package models

// Account is a local login record. External to the sync core: the engine
// only consumes the credential-check result.
type Account struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // bcrypt
	Admin        bool   `json:"admin"`
}
