package users

type ContextKey string

const UserKey ContextKey = "user"

// User is the caller identity taken from a verified access token. Accounts and
// login live outside this service, so the id is opaque here.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
}

func (u *User) Is(userID string) bool {
	return u != nil && u.ID != "" && u.ID == userID
}
