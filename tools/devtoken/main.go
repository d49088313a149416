package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/resq-app/resq-backend/internal/auth"
	"github.com/resq-app/resq-backend/internal/firebase"
	"github.com/resq-app/resq-backend/internal/utils"
)

var (
	userID          = flag.String("user", "", "user id (token subject)")
	ttl             = flag.Duration("ttl", 24*time.Hour, "token validity (jwt mode)")
	mode            = flag.String("mode", "jwt", "jwt or firebase")
	projectAPIToken = flag.String("at", "", "project API token (firebase mode) - if not provided, value from env variable PROJECTAPIKEY is used")
)

type verificationResponse struct {
	IDToken string `json:"idToken"`
}

// getIDToken exchanges customToken for an ID token
func getIDToken(customToken string, projectAPIKey string) (string, error) {
	requestBody, err := json.Marshal(map[string]string{
		"token":             customToken,
		"returnSecureToken": "true",
	})
	if err != nil {
		return "", err
	}

	resp, err := http.Post(
		"https://www.googleapis.com/identitytoolkit/v3/relyingparty/verifyCustomToken?key="+projectAPIKey,
		"application/json",
		bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("Verification request err: %w", err)
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("Error while reading response body: %w", err)
	}

	var r verificationResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("Response mismatch: %w", err)
	}
	if r.IDToken == "" {
		return "", fmt.Errorf("no ID token in response: %s", body)
	}

	return r.IDToken, nil
}

func firebaseToken(ctx context.Context, config *utils.Config) (string, error) {
	if *projectAPIToken == "" {
		*projectAPIToken = os.Getenv("PROJECTAPIKEY")
	}

	app, err := firebase.NewApp(ctx, config.Firebase)
	if err != nil {
		return "", err
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return "", err
	}

	customToken, err := auth.NewClient(client).CustomToken(ctx, *userID)
	if err != nil {
		return "", err
	}

	return getIDToken(customToken, *projectAPIToken)
}

func main() {
	flag.Parse()

	if *userID == "" {
		flag.PrintDefaults()
		os.Exit(0)
	}

	ctx := context.Background()

	config, err := utils.LoadConfig(ctx)
	if err != nil {
		log.Fatalln(err)
	}

	var token string

	switch *mode {
	case "jwt":
		j, err := auth.NewJWT(config.Server.JWTSecret, config.Server.JWTIssuer)
		if err != nil {
			log.Fatalln(err)
		}
		token, err = j.Issue(*userID, *ttl)
		if err != nil {
			log.Fatalln(err)
		}
	case "firebase":
		token, err = firebaseToken(ctx, config)
		if err != nil {
			log.Fatalln(err)
		}
	default:
		log.Fatalf("unknown mode %q", *mode)
	}

	fmt.Println(token)
}
