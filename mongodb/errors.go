package mongodb

import (
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/v2/mongo"
	serrors "go.pilab.hu/authd/errors"
)

var dupKeyPattern = regexp.MustCompile(`dup key: \{ ?(.*?) ?\}`)

// translateError maps driver errors onto the errors package. notFound is
// returned for mongo.ErrNoDocuments.
func translateError(err error, entity string, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return notFound
	}
	if isDuplicateKey(err) {
		return serrors.Conflict(fmt.Sprintf("There's already %s for %s.", duplicateField(err), entity), err)
	}
	return serrors.Internal(fmt.Sprintf("%s store failure", entity), err)
}

func isDuplicateKey(err error) bool {
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 || e.Code == 11001 {
				return true
			}
		}
	}
	return false
}

func duplicateField(err error) string {
	if m := dupKeyPattern.FindStringSubmatch(err.Error()); len(m) == 2 && m[1] != "" {
		return m[1]
	}
	return "a record with the same key"
}
