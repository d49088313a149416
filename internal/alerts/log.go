package alerts

import (
	"context"

	"github.com/resq-app/resq-backend/internal/constants"
	"github.com/resq-app/resq-backend/internal/firebase/structs"
	"github.com/resq-app/resq-backend/internal/store"
)

//FirestoreLog Keeps raised emergencies in Firestore, one document per emergency id.
type FirestoreLog struct {
	store store.Storer
}

//NewFirestoreLog Creates the log.
func NewFirestoreLog(store store.Storer) *FirestoreLog {
	return &FirestoreLog{store: store}
}

//Save Stores the emergency.
func (l *FirestoreLog) Save(ctx context.Context, emergency structs.Emergency) error {
	_, err := l.store.Doc(constants.CollectionEmergencies, emergency.EmergencyID).Set(ctx, emergency)
	return err
}
