package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidtube/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrVideoNotFound      = errors.New("video not found")
	ErrDuplicateUser      = errors.New("username or email already in use")
	ErrSelfSubscription   = errors.New("cannot subscribe to own channel")
)

type dataset struct {
	Users         map[string]models.User          `json:"users"`
	Subscriptions map[string]map[string]time.Time `json:"subscriptions"`
	Videos        map[string]models.Video         `json:"videos"`
}

// persistedUser is the on-disk shape of a user record. models.User drops
// PasswordHash and RefreshToken from JSON entirely, so the store keeps its
// own record for the fields it must round trip.
type persistedUser struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	PasswordHash  string    `json:"passwordHash,omitempty"`
	AvatarURL     string    `json:"avatarUrl"`
	CoverImageURL string    `json:"coverImageUrl,omitempty"`
	RefreshToken  string    `json:"refreshToken,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type persistedDataset struct {
	Users         map[string]persistedUser        `json:"users"`
	Subscriptions map[string]map[string]time.Time `json:"subscriptions"`
	Videos        map[string]models.Video         `json:"videos"`
}

func toPersistedDataset(data dataset) persistedDataset {
	out := persistedDataset{
		Users:         make(map[string]persistedUser, len(data.Users)),
		Subscriptions: data.Subscriptions,
		Videos:        data.Videos,
	}
	for id, user := range data.Users {
		out.Users[id] = persistedUser(user)
	}
	return out
}

func fromPersistedDataset(data persistedDataset) dataset {
	out := dataset{
		Users:         make(map[string]models.User, len(data.Users)),
		Subscriptions: data.Subscriptions,
		Videos:        data.Videos,
	}
	for id, user := range data.Users {
		out.Users[id] = models.User(user)
	}
	return out
}

// Storage is a JSON-file backed Repository used for development and tests.
// Every mutation rewrites the file atomically via a temp file rename.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
}

func newDataset() dataset {
	return dataset{
		Users:         make(map[string]models.User),
		Subscriptions: make(map[string]map[string]time.Time),
		Videos:        make(map[string]models.Video),
	}
}

func (s *Storage) ensureDatasetInitializedLocked() {
	if s.data.Users == nil {
		s.data.Users = make(map[string]models.User)
	}
	if s.data.Subscriptions == nil {
		s.data.Subscriptions = make(map[string]map[string]time.Time)
	}
	if s.data.Videos == nil {
		s.data.Videos = make(map[string]models.Video)
	}
}

func NewStorage(path string, opts ...Option) (*Storage, error) {
	store := &Storage{filePath: path}
	for _, opt := range opts {
		if opt != nil {
			opt.applyJSON(store)
		}
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	var stored persistedDataset
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&stored); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}
	s.data = fromPersistedDataset(stored)

	s.ensureDatasetInitializedLocked()

	return nil
}

func (s *Storage) persist() error {
	return s.persistDataset(s.data)
}

func (s *Storage) persistDataset(data dataset) error {
	if s.persistOverride != nil {
		if err := s.persistOverride(data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(toPersistedDataset(data)); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

func cloneDataset(src dataset) dataset {
	clone := newDataset()

	for id, user := range src.Users {
		clone.Users[id] = user
	}
	for id, video := range src.Videos {
		clone.Videos[id] = video
	}
	for subscriberID, channels := range src.Subscriptions {
		if channels == nil {
			continue
		}
		cloned := make(map[string]time.Time, len(channels))
		for channelID, subscribedAt := range channels {
			cloned[channelID] = subscribedAt
		}
		clone.Subscriptions[subscriberID] = cloned
	}

	return clone
}

func generateID() string {
	return uuid.NewString()
}

// Ping reports whether the backing file remains writable.
func (s *Storage) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persist()
}

// Close flushes state to disk. The JSON store holds no external resources.
func (s *Storage) Close(ctx context.Context) error {
	return s.Ping(ctx)
}

// User operations

func (s *Storage) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}

	username := strings.ToLower(strings.TrimSpace(params.Username))
	email := strings.ToLower(strings.TrimSpace(params.Email))
	fullName := strings.TrimSpace(params.FullName)
	switch {
	case username == "":
		return models.User{}, errors.New("username is required")
	case email == "":
		return models.User{}, errors.New("email is required")
	case fullName == "":
		return models.User{}, errors.New("fullName is required")
	case params.Password == "":
		return models.User{}, errors.New("password is required")
	}

	hashed, err := hashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.data.Users {
		if user.Username == username || user.Email == email {
			return models.User{}, ErrDuplicateUser
		}
	}

	now := time.Now().UTC()
	user := models.User{
		ID:            generateID(),
		Username:      username,
		Email:         email,
		FullName:      fullName,
		PasswordHash:  hashed,
		AvatarURL:     strings.TrimSpace(params.AvatarURL),
		CoverImageURL: strings.TrimSpace(params.CoverImageURL),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.data.Users[user.ID] = user
	if err := s.persist(); err != nil {
		delete(s.data.Users, user.ID)
		return models.User{}, err
	}

	return user, nil
}

func (s *Storage) GetUser(ctx context.Context, id string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.data.Users[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return user, nil
}

// FindUserByUsername looks up a user by their normalized username.
func (s *Storage) FindUserByUsername(ctx context.Context, username string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	normalized := strings.ToLower(strings.TrimSpace(username))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.data.Users {
		if user.Username == normalized {
			return user, nil
		}
	}
	return models.User{}, ErrUserNotFound
}

// FindUserByUsernameOrEmail matches on either identifier; blank arguments never match.
func (s *Storage) FindUserByUsernameOrEmail(ctx context.Context, username, email string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	normalizedUsername := strings.ToLower(strings.TrimSpace(username))
	normalizedEmail := strings.ToLower(strings.TrimSpace(email))
	if normalizedUsername == "" && normalizedEmail == "" {
		return models.User{}, ErrUserNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.data.Users {
		if normalizedUsername != "" && user.Username == normalizedUsername {
			return user, nil
		}
		if normalizedEmail != "" && user.Email == normalizedEmail {
			return user, nil
		}
	}
	return models.User{}, ErrUserNotFound
}

// UpdateUser mutates account metadata while enforcing uniqueness constraints.
func (s *Storage) UpdateUser(ctx context.Context, id string, update UserUpdate) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	user, ok := updatedData.Users[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}

	if update.FullName != nil {
		name := strings.TrimSpace(*update.FullName)
		if name == "" {
			return models.User{}, errors.New("fullName cannot be empty")
		}
		user.FullName = name
	}

	if update.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*update.Email))
		if email == "" {
			return models.User{}, errors.New("email cannot be empty")
		}
		for existingID, existing := range updatedData.Users {
			if existingID != id && existing.Email == email {
				return models.User{}, ErrDuplicateUser
			}
		}
		user.Email = email
	}

	if update.Username != nil {
		username := strings.ToLower(strings.TrimSpace(*update.Username))
		if username == "" {
			return models.User{}, errors.New("username cannot be empty")
		}
		for existingID, existing := range updatedData.Users {
			if existingID != id && existing.Username == username {
				return models.User{}, ErrDuplicateUser
			}
		}
		user.Username = username
	}

	user.UpdatedAt = time.Now().UTC()
	updatedData.Users[id] = user
	if err := s.persistDataset(updatedData); err != nil {
		return models.User{}, err
	}

	s.data = updatedData

	return user, nil
}

// setUserField applies a scoped single-field update without touching or
// validating anything else on the record.
func (s *Storage) setUserField(id string, mutate func(*models.User)) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.data.Users[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}

	original := user
	mutate(&user)
	user.UpdatedAt = time.Now().UTC()

	s.data.Users[id] = user
	if err := s.persist(); err != nil {
		s.data.Users[id] = original
		return models.User{}, err
	}

	return user, nil
}

func (s *Storage) VerifyUserPassword(ctx context.Context, id, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	user, ok := s.data.Users[id]
	s.mu.RUnlock()
	if !ok {
		return ErrUserNotFound
	}
	return verifyPassword(user.PasswordHash, password)
}

// SetUserPassword hashes and stores a new password for the user.
func (s *Storage) SetUserPassword(ctx context.Context, id, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if password == "" {
		return errors.New("password is required")
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = s.setUserField(id, func(user *models.User) {
		user.PasswordHash = hashed
	})
	return err
}

func (s *Storage) SetRefreshToken(ctx context.Context, id, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.setUserField(id, func(user *models.User) {
		user.RefreshToken = token
	})
	return err
}

func (s *Storage) ClearRefreshToken(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.setUserField(id, func(user *models.User) {
		user.RefreshToken = ""
	})
	return err
}

func (s *Storage) SetAvatarURL(ctx context.Context, id, url string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	return s.setUserField(id, func(user *models.User) {
		user.AvatarURL = strings.TrimSpace(url)
	})
}

func (s *Storage) SetCoverImageURL(ctx context.Context, id, url string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	return s.setUserField(id, func(user *models.User) {
		user.CoverImageURL = strings.TrimSpace(url)
	})
}

// Subscription operations

// Subscribe records that subscriber follows the channel. The operation is idempotent.
func (s *Storage) Subscribe(ctx context.Context, subscriberID, channelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if subscriberID == channelID {
		return ErrSelfSubscription
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[subscriberID]; !ok {
		return ErrUserNotFound
	}
	if _, ok := s.data.Users[channelID]; !ok {
		return ErrUserNotFound
	}

	updatedData := cloneDataset(s.data)
	channels := updatedData.Subscriptions[subscriberID]
	if channels == nil {
		channels = make(map[string]time.Time)
	}
	if _, exists := channels[channelID]; !exists {
		channels[channelID] = time.Now().UTC()
	}
	updatedData.Subscriptions[subscriberID] = channels

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}

	s.data = updatedData

	return nil
}

// Unsubscribe removes the edge if present. The operation is idempotent.
func (s *Storage) Unsubscribe(ctx context.Context, subscriberID, channelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[subscriberID]; !ok {
		return ErrUserNotFound
	}
	if _, ok := s.data.Users[channelID]; !ok {
		return ErrUserNotFound
	}

	updatedData := cloneDataset(s.data)
	if channels, ok := updatedData.Subscriptions[subscriberID]; ok {
		delete(channels, channelID)
		if len(channels) == 0 {
			delete(updatedData.Subscriptions, subscriberID)
		}
	}

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}

	s.data = updatedData

	return nil
}

// IsSubscribed reports whether subscriber currently follows the channel.
func (s *Storage) IsSubscribed(ctx context.Context, subscriberID, channelID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	channels, ok := s.data.Subscriptions[subscriberID]
	if !ok {
		return false, nil
	}
	_, exists := channels[channelID]
	return exists, nil
}

// CountSubscribers returns how many users follow the channel.
func (s *Storage) CountSubscribers(ctx context.Context, channelID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, channels := range s.data.Subscriptions {
		if channels == nil {
			continue
		}
		if _, ok := channels[channelID]; ok {
			count++
		}
	}
	return count, nil
}

// CountSubscribedTo returns how many channels the user follows.
func (s *Storage) CountSubscribedTo(ctx context.Context, subscriberID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.Subscriptions[subscriberID]), nil
}

// Video operations

func (s *Storage) CreateVideo(ctx context.Context, params CreateVideoParams) (models.Video, error) {
	if err := ctx.Err(); err != nil {
		return models.Video{}, err
	}

	title := strings.TrimSpace(params.Title)
	if title == "" {
		return models.Video{}, errors.New("title is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[params.OwnerID]; !ok {
		return models.Video{}, ErrUserNotFound
	}

	now := time.Now().UTC()
	video := models.Video{
		ID:              generateID(),
		OwnerID:         params.OwnerID,
		VideoFileURL:    strings.TrimSpace(params.VideoFileURL),
		ThumbnailURL:    strings.TrimSpace(params.ThumbnailURL),
		Title:           title,
		Description:     strings.TrimSpace(params.Description),
		DurationSeconds: params.DurationSeconds,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	s.data.Videos[video.ID] = video
	if err := s.persist(); err != nil {
		delete(s.data.Videos, video.ID)
		return models.Video{}, err
	}

	return video, nil
}

func (s *Storage) GetVideo(ctx context.Context, id string) (models.Video, error) {
	if err := ctx.Err(); err != nil {
		return models.Video{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	video, ok := s.data.Videos[id]
	if !ok {
		return models.Video{}, ErrVideoNotFound
	}
	return video, nil
}

// ListVideos returns all videos ordered newest first.
func (s *Storage) ListVideos(ctx context.Context) ([]models.Video, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	videos := make([]models.Video, 0, len(s.data.Videos))
	for _, video := range s.data.Videos {
		videos = append(videos, video)
	}
	sort.Slice(videos, func(i, j int) bool {
		if videos[i].CreatedAt.Equal(videos[j].CreatedAt) {
			return videos[i].ID < videos[j].ID
		}
		return videos[i].CreatedAt.After(videos[j].CreatedAt)
	})
	return videos, nil
}
