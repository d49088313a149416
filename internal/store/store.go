package store

import (
	"context"

	"cloud.google.com/go/firestore"
)

// Storer is a storage abstraction layer interface
type Storer interface {
	Doc(string, string) *firestore.DocumentRef
	RunTransaction(context.Context, func(context.Context, *firestore.Transaction) error, ...firestore.TransactionOption) error
	Find(collectionName string, field string, value interface{}) firestore.Query
}

// Client to interact with storage API
type Client struct {
	fs *firestore.Client
}

// New wraps a Firestore client.
func New(fs *firestore.Client) Client {
	return Client{fs: fs}
}

// Doc returns a DocumentRef that refers to the document in the collection with the given identifier.
func (i Client) Doc(collectionName string, path string) *firestore.DocumentRef {
	return i.fs.Collection(collectionName).Doc(path)
}

// Find Creates query searching for all records with given field value.
func (i Client) Find(collectionName string, field string, value interface{}) firestore.Query {
	return i.fs.Collection(collectionName).Where(field, "==", value)
}

// RunTransaction runs f in a transaction.
func (i Client) RunTransaction(ctx context.Context, f func(context.Context, *firestore.Transaction) error, opts ...firestore.TransactionOption) (err error) {
	return i.fs.RunTransaction(ctx, f, opts...)
}
