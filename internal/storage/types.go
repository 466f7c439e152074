package storage

// CreateUserParams captures the attributes required to register a user.
// Username and email are normalized to lower case before storage; Password is
// hashed inside CreateUser and never stored in clear text.
type CreateUserParams struct {
	Username      string
	Email         string
	FullName      string
	Password      string
	AvatarURL     string
	CoverImageURL string
}

// UserUpdate represents the account fields that can be patched. Nil pointers
// leave the corresponding field untouched.
type UserUpdate struct {
	FullName *string
	Email    *string
	Username *string
}

// CreateVideoParams captures the metadata recorded when a video is published.
type CreateVideoParams struct {
	OwnerID         string
	VideoFileURL    string
	ThumbnailURL    string
	Title           string
	Description     string
	DurationSeconds float64
}
