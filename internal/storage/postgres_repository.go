package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"vidtube/internal/models"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

type postgresRepository struct {
	pool *pgxpool.Pool
	cfg  PostgresConfig
}

// NewPostgresRepository opens a Postgres-backed repository and applies the
// schema migration before returning.
func NewPostgresRepository(ctx context.Context, dsn string, opts ...Option) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	repo := &postgresRepository{pool: pool, cfg: cfg}
	if err := repo.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("postgres pool not initialised")
	}
	return r.pool.Ping(ctx)
}

func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return ErrDuplicateUser
		case pgErrForeignKeyViolation:
			return ErrUserNotFound
		}
	}
	return err
}

const userColumns = "id, username, email, full_name, password_hash, avatar_url, cover_image_url, refresh_token, created_at, updated_at"

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FullName,
		&user.PasswordHash,
		&user.AvatarURL,
		&user.CoverImageURL,
		&user.RefreshToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("scan user: %w", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}

func (r *postgresRepository) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
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

	_, err = r.pool.Exec(ctx,
		"INSERT INTO users (id, username, email, full_name, password_hash, avatar_url, cover_image_url, refresh_token, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, '', $8, $9)",
		user.ID, user.Username, user.Email, user.FullName, user.PasswordHash, user.AvatarURL, user.CoverImageURL, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return models.User{}, translatePgError(err)
	}
	return user, nil
}

func (r *postgresRepository) GetUser(ctx context.Context, id string) (models.User, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	return scanUser(row)
}

func (r *postgresRepository) FindUserByUsername(ctx context.Context, username string) (models.User, error) {
	normalized := strings.ToLower(strings.TrimSpace(username))
	row := r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE username = $1", normalized)
	return scanUser(row)
}

func (r *postgresRepository) FindUserByUsernameOrEmail(ctx context.Context, username, email string) (models.User, error) {
	normalizedUsername := strings.ToLower(strings.TrimSpace(username))
	normalizedEmail := strings.ToLower(strings.TrimSpace(email))
	if normalizedUsername == "" && normalizedEmail == "" {
		return models.User{}, ErrUserNotFound
	}
	row := r.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE (username = $1 AND $1 <> '') OR (email = $2 AND $2 <> '') LIMIT 1",
		normalizedUsername, normalizedEmail)
	return scanUser(row)
}

func (r *postgresRepository) UpdateUser(ctx context.Context, id string, update UserUpdate) (models.User, error) {
	assignments := make([]string, 0, 3)
	args := []any{id}
	next := 2

	if update.FullName != nil {
		name := strings.TrimSpace(*update.FullName)
		if name == "" {
			return models.User{}, errors.New("fullName cannot be empty")
		}
		assignments = append(assignments, fmt.Sprintf("full_name = $%d", next))
		args = append(args, name)
		next++
	}
	if update.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*update.Email))
		if email == "" {
			return models.User{}, errors.New("email cannot be empty")
		}
		assignments = append(assignments, fmt.Sprintf("email = $%d", next))
		args = append(args, email)
		next++
	}
	if update.Username != nil {
		username := strings.ToLower(strings.TrimSpace(*update.Username))
		if username == "" {
			return models.User{}, errors.New("username cannot be empty")
		}
		assignments = append(assignments, fmt.Sprintf("username = $%d", next))
		args = append(args, username)
		next++
	}
	if len(assignments) == 0 {
		return r.GetUser(ctx, id)
	}

	query := "UPDATE users SET " + strings.Join(assignments, ", ") + ", updated_at = now() WHERE id = $1 RETURNING " + userColumns
	user, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return models.User{}, translatePgError(err)
	}
	return user, nil
}

func (r *postgresRepository) setUserColumn(ctx context.Context, id, column, value string) (models.User, error) {
	query := "UPDATE users SET " + column + " = $2, updated_at = now() WHERE id = $1 RETURNING " + userColumns
	return scanUser(r.pool.QueryRow(ctx, query, id, value))
}

func (r *postgresRepository) VerifyUserPassword(ctx context.Context, id, password string) error {
	var hash string
	err := r.pool.QueryRow(ctx, "SELECT password_hash FROM users WHERE id = $1", id).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("load password hash: %w", err)
	}
	return verifyPassword(hash, password)
}

func (r *postgresRepository) SetUserPassword(ctx context.Context, id, password string) error {
	if password == "" {
		return errors.New("password is required")
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = r.setUserColumn(ctx, id, "password_hash", hashed)
	return err
}

func (r *postgresRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	_, err := r.setUserColumn(ctx, id, "refresh_token", token)
	return err
}

func (r *postgresRepository) ClearRefreshToken(ctx context.Context, id string) error {
	_, err := r.setUserColumn(ctx, id, "refresh_token", "")
	return err
}

func (r *postgresRepository) SetAvatarURL(ctx context.Context, id, url string) (models.User, error) {
	return r.setUserColumn(ctx, id, "avatar_url", strings.TrimSpace(url))
}

func (r *postgresRepository) SetCoverImageURL(ctx context.Context, id, url string) (models.User, error) {
	return r.setUserColumn(ctx, id, "cover_image_url", strings.TrimSpace(url))
}

func (r *postgresRepository) Subscribe(ctx context.Context, subscriberID, channelID string) error {
	if subscriberID == channelID {
		return ErrSelfSubscription
	}
	_, err := r.pool.Exec(ctx,
		"INSERT INTO subscriptions (subscriber_id, channel_id, created_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING",
		subscriberID, channelID, time.Now().UTC())
	if err != nil {
		return translatePgError(err)
	}
	return nil
}

func (r *postgresRepository) Unsubscribe(ctx context.Context, subscriberID, channelID string) error {
	_, err := r.pool.Exec(ctx,
		"DELETE FROM subscriptions WHERE subscriber_id = $1 AND channel_id = $2",
		subscriberID, channelID)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

func (r *postgresRepository) IsSubscribed(ctx context.Context, subscriberID, channelID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM subscriptions WHERE subscriber_id = $1 AND channel_id = $2)",
		subscriberID, channelID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check subscription: %w", err)
	}
	return exists, nil
}

func (r *postgresRepository) CountSubscribers(ctx context.Context, channelID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT count(*) FROM subscriptions WHERE channel_id = $1", channelID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count subscribers: %w", err)
	}
	return count, nil
}

func (r *postgresRepository) CountSubscribedTo(ctx context.Context, subscriberID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT count(*) FROM subscriptions WHERE subscriber_id = $1", subscriberID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count subscribed to: %w", err)
	}
	return count, nil
}

const videoColumns = "id, owner_id, video_file_url, thumbnail_url, title, description, duration_seconds, created_at, updated_at"

func scanVideo(row pgx.Row) (models.Video, error) {
	var video models.Video
	err := row.Scan(
		&video.ID,
		&video.OwnerID,
		&video.VideoFileURL,
		&video.ThumbnailURL,
		&video.Title,
		&video.Description,
		&video.DurationSeconds,
		&video.CreatedAt,
		&video.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Video{}, ErrVideoNotFound
	}
	if err != nil {
		return models.Video{}, fmt.Errorf("scan video: %w", err)
	}
	video.CreatedAt = video.CreatedAt.UTC()
	video.UpdatedAt = video.UpdatedAt.UTC()
	return video, nil
}

func (r *postgresRepository) CreateVideo(ctx context.Context, params CreateVideoParams) (models.Video, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return models.Video{}, errors.New("title is required")
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

	_, err := r.pool.Exec(ctx,
		"INSERT INTO videos (id, owner_id, video_file_url, thumbnail_url, title, description, duration_seconds, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
		video.ID, video.OwnerID, video.VideoFileURL, video.ThumbnailURL, video.Title, video.Description, video.DurationSeconds, video.CreatedAt, video.UpdatedAt)
	if err != nil {
		return models.Video{}, translatePgError(err)
	}
	return video, nil
}

func (r *postgresRepository) GetVideo(ctx context.Context, id string) (models.Video, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+videoColumns+" FROM videos WHERE id = $1", id)
	return scanVideo(row)
}

func (r *postgresRepository) ListVideos(ctx context.Context) ([]models.Video, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+videoColumns+" FROM videos ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	videos := make([]models.Video, 0)
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return videos, nil
}

var _ Repository = (*postgresRepository)(nil)
