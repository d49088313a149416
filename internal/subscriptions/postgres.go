package subscriptions

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/GoogleCloudPlatform/cloudsql-proxy/proxy/proxy"
	"github.com/go-pg/pg/v10"
	"github.com/go-pg/pg/v10/orm"
	"github.com/resq-app/resq-backend/internal/logging"
)

type pgSubscription struct {
	tableName struct{} `pg:"push_subscriptions"`

	ID        int64     `pg:",pk"`
	UserID    string    `pg:",notnull,unique:user_endpoint"`
	Endpoint  string    `pg:",notnull,unique:user_endpoint"`
	P256dh    string    `pg:",notnull"`
	Auth      string    `pg:",notnull"`
	Enabled   bool      `pg:",notnull,use_zero"`
	CreatedAt time.Time `pg:",notnull"`
	UpdatedAt time.Time `pg:",notnull"`
}

func (p *pgSubscription) toSubscription() Subscription {
	return Subscription{
		UserID:    p.UserID,
		Endpoint:  p.Endpoint,
		Keys:      Keys{P256dh: p.P256dh, Auth: p.Auth},
		Enabled:   p.Enabled,
		CreatedAt: p.CreatedAt.UTC(),
		UpdatedAt: p.UpdatedAt.UTC(),
	}
}

// PostgresOptions Connection settings of the Postgres backend.
type PostgresOptions struct {
	Addr     string
	User     string
	Password string
	Database string
	// CloudSQLInstance, when set, dials through the Cloud SQL proxy instead of Addr.
	CloudSQLInstance string
}

// Postgres stores subscriptions in PostgreSQL.
type Postgres struct {
	inner *pg.DB
}

// OpenPostgres connects to the database and creates the schema.
func OpenPostgres(ctx context.Context, opts PostgresOptions) (*Postgres, error) {
	logger := logging.FromContext(ctx).Named("subscriptions.OpenPostgres")

	pgOpts := &pg.Options{
		Addr:     opts.Addr,
		User:     opts.User,
		Password: opts.Password,
		Database: opts.Database,
	}

	if opts.CloudSQLInstance != "" {
		instance := opts.CloudSQLInstance
		pgOpts.Dialer = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return proxy.Dial(instance)
		}
		logger.Debugf("Dialing Postgres through Cloud SQL instance %v", instance)
	}

	db := pg.Connect(pgOpts)
	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	p := &Postgres{inner: db}
	if err := p.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("Error while creating DB schema: %w", err)
	}

	return p, nil
}

func (p *Postgres) createSchema(ctx context.Context) error {
	models := []interface{}{
		(*pgSubscription)(nil),
	}

	for _, model := range models {
		err := p.inner.ModelContext(ctx, model).CreateTable(&orm.CreateTableOptions{
			IfNotExists: true,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Close Closes the connection pool.
func (p *Postgres) Close() error {
	return p.inner.Close()
}

// Subscribe upserts the (userID, endpoint) record.
func (p *Postgres) Subscribe(ctx context.Context, userID, endpoint string, keys Keys) (*Subscription, error) {
	if err := checkKey(userID, endpoint); err != nil {
		return nil, err
	}
	if err := checkKeys(keys); err != nil {
		return nil, err
	}

	ts := timeNow()
	rec := &pgSubscription{
		UserID:    userID,
		Endpoint:  endpoint,
		P256dh:    keys.P256dh,
		Auth:      keys.Auth,
		Enabled:   true,
		CreatedAt: ts,
		UpdatedAt: ts,
	}

	_, err := p.inner.ModelContext(ctx, rec).
		OnConflict("(user_id, endpoint) DO UPDATE").
		Set("p256dh = EXCLUDED.p256dh").
		Set("auth = EXCLUDED.auth").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Insert()
	if err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}

	sub := rec.toSubscription()
	return &sub, nil
}

// Unsubscribe deletes the record.
func (p *Postgres) Unsubscribe(ctx context.Context, userID, endpoint string) (bool, error) {
	if err := checkKey(userID, endpoint); err != nil {
		return false, err
	}

	res, err := p.inner.ModelContext(ctx, (*pgSubscription)(nil)).
		Where("user_id = ?", userID).
		Where("endpoint = ?", endpoint).
		Delete()
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	return res.RowsAffected() > 0, nil
}

// SetEnabled toggles one or all of the user's records.
func (p *Postgres) SetEnabled(ctx context.Context, userID, endpoint string, enabled bool) (bool, error) {
	if err := checkUser(userID); err != nil {
		return false, err
	}

	q := p.inner.ModelContext(ctx, (*pgSubscription)(nil)).
		Set("enabled = ?", enabled).
		Set("updated_at = ?", timeNow()).
		Where("user_id = ?", userID)
	if endpoint != AllEndpoints {
		q = q.Where("endpoint = ?", endpoint)
	}

	res, err := q.Update()
	if err != nil {
		return false, fmt.Errorf("update subscription: %w", err)
	}
	return res.RowsAffected() > 0, nil
}

// ListEnabled returns the user's enabled records.
func (p *Postgres) ListEnabled(ctx context.Context, userID string) ([]Subscription, error) {
	if err := checkUser(userID); err != nil {
		return nil, err
	}

	var rows []pgSubscription
	err := p.inner.ModelContext(ctx, &rows).
		Where("user_id = ?", userID).
		Where("enabled = TRUE").
		Order("endpoint ASC").
		Select()
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	subs := make([]Subscription, 0, len(rows))
	for i := range rows {
		subs = append(subs, rows[i].toSubscription())
	}
	return subs, nil
}
