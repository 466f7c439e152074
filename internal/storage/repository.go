package storage

import (
	"context"

	"vidtube/internal/models"
)

// Repository exposes the datastore operations required by the API handlers
// and the token issuer. Two implementations exist: the JSON-file Storage and
// the Postgres-backed repository.
type Repository interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	FindUserByUsername(ctx context.Context, username string) (models.User, error)
	FindUserByUsernameOrEmail(ctx context.Context, username, email string) (models.User, error)
	UpdateUser(ctx context.Context, id string, update UserUpdate) (models.User, error)
	VerifyUserPassword(ctx context.Context, id, password string) error
	SetUserPassword(ctx context.Context, id, password string) error
	SetRefreshToken(ctx context.Context, id, token string) error
	ClearRefreshToken(ctx context.Context, id string) error
	SetAvatarURL(ctx context.Context, id, url string) (models.User, error)
	SetCoverImageURL(ctx context.Context, id, url string) (models.User, error)

	Subscribe(ctx context.Context, subscriberID, channelID string) error
	Unsubscribe(ctx context.Context, subscriberID, channelID string) error
	IsSubscribed(ctx context.Context, subscriberID, channelID string) (bool, error)
	CountSubscribers(ctx context.Context, channelID string) (int, error)
	CountSubscribedTo(ctx context.Context, subscriberID string) (int, error)

	CreateVideo(ctx context.Context, params CreateVideoParams) (models.Video, error)
	GetVideo(ctx context.Context, id string) (models.Video, error)
	ListVideos(ctx context.Context) ([]models.Video, error)
}

var _ Repository = (*Storage)(nil)
