package models

import "time"

// User is an account on the platform. PasswordHash and RefreshToken are
// server-side state and never marshal; stores that serialize users keep
// their own persistence records.
type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	PasswordHash  string    `json:"-"`
	AvatarURL     string    `json:"avatarUrl"`
	CoverImageURL string    `json:"coverImageUrl,omitempty"`
	RefreshToken  string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Subscription records that Subscriber follows Channel. Both fields are user
// IDs; a pair appears at most once.
type Subscription struct {
	SubscriberID string    `json:"subscriberId"`
	ChannelID    string    `json:"channelId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Video is uploaded media metadata. The files themselves live in object
// storage; only their URLs are kept here.
type Video struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"ownerId"`
	VideoFileURL    string    `json:"videoFileUrl"`
	ThumbnailURL    string    `json:"thumbnailUrl"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	DurationSeconds float64   `json:"durationSeconds"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ChannelProfile is the public aggregation served for a channel page.
type ChannelProfile struct {
	ID                       string    `json:"id"`
	Username                 string    `json:"username"`
	FullName                 string    `json:"fullName"`
	Email                    string    `json:"email"`
	AvatarURL                string    `json:"avatarUrl"`
	CoverImageURL            string    `json:"coverImageUrl,omitempty"`
	TotalSubscribers         int       `json:"totalSubscribers"`
	TotalChannelSubscribedTo int       `json:"totalChannelSubscribedTo"`
	IsSubscribed             bool      `json:"isSubscribed"`
	CreatedAt                time.Time `json:"createdAt"`
}
