package firebase

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"firebase.google.com/go/auth"
	"firebase.google.com/go/db"
	"firebase.google.com/go/messaging"
	"github.com/resq-app/resq-backend/internal/logging"
	"github.com/resq-app/resq-backend/internal/utils"
)

//App Firebase application, clients are created on demand.
type App struct {
	inner *firebase.App
}

//NewApp Creates the Firebase application of the configured project.
func NewApp(ctx context.Context, config utils.FirebaseConfig) (*App, error) {
	logger := logging.FromContext(ctx).Named("firebase.NewApp")

	if !config.FirebaseEnabled() {
		return nil, fmt.Errorf("firebase is disabled (PROJECT_ID=%q)", config.ProjectID)
	}

	conf := &firebase.Config{
		ProjectID:   config.ProjectID,
		DatabaseURL: config.DatabaseURL,
	}

	app, err := firebase.NewApp(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}

	logger.Debugf("Firebase app of project %v created", config.ProjectID)

	return &App{inner: app}, nil
}

//Firestore Creates Firestore client.
func (a *App) Firestore(ctx context.Context) (*firestore.Client, error) {
	client, err := a.inner.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("app.Firestore: %w", err)
	}
	return client, nil
}

//Database Creates Realtime DB client.
func (a *App) Database(ctx context.Context) (*db.Client, error) {
	client, err := a.inner.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("app.Database: %w", err)
	}
	return client, nil
}

//Auth Creates Firebase Auth client.
func (a *App) Auth(ctx context.Context) (*auth.Client, error) {
	client, err := a.inner.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("app.Auth: %w", err)
	}
	return client, nil
}

//Messaging Creates Firebase Cloud Messaging client.
func (a *App) Messaging(ctx context.Context) (*messaging.Client, error) {
	client, err := a.inner.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("app.Messaging: %w", err)
	}
	return client, nil
}
