// Package store is the durable record store shared by the queue, the
// coordinator and the HTTP surface. Records are JSON documents addressed by
// (kind, id).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"

	"myhelper/internal/failure"
)

// Record kinds.
const (
	KindMission  = "missions"
	KindTask     = "tasks"
	KindTool     = "tools"
	KindLearning = "learnings"
	KindQueue    = "queue"
)

var ErrNotFound = errors.New("record not found")

// ErrExists is returned by Create when every generated id collided.
var ErrExists = errors.New("record already exists")

// ErrUnchanged may be returned by a Mutator to skip the write. UpdateAtomic
// then returns the current value (or the default) and a nil error.
var ErrUnchanged = errors.New("record unchanged")

// Mutator receives the current encoded value (or the default when the record
// is absent) and returns the value to persist. A nil default makes
// UpdateAtomic return ErrNotFound for absent records.
type Mutator func(cur []byte) ([]byte, error)

type Store interface {
	Get(ctx context.Context, kind, id string, out any) error
	Put(ctx context.Context, kind, id string, v any) error
	UpdateAtomic(ctx context.Context, kind, id string, def []byte, mutate Mutator) ([]byte, error)
	Create(ctx context.Context, kind string, gen func() string, v any) (string, error)
	List(ctx context.Context, kind string) ([]string, error)
	Close() error
}

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]*$`)

func checkKey(kind, id string) error {
	if !validName.MatchString(kind) {
		return failure.New(failure.KindValidation, "invalid record kind %q", kind)
	}
	if !validName.MatchString(id) || id == "." || id == ".." {
		return failure.New(failure.KindValidation, "invalid record id %q", id)
	}
	return nil
}

// Update is the typed form of UpdateAtomic. A missing record starts from the
// zero T unless mustExist is set, in which case ErrNotFound is returned. fn
// may return ErrUnchanged to leave the record as it was.
func Update[T any](ctx context.Context, s Store, kind, id string, mustExist bool, fn func(*T) error) (T, error) {
	var result T
	var def []byte
	if !mustExist {
		def = []byte("null")
	}
	raw, err := s.UpdateAtomic(ctx, kind, id, def, func(cur []byte) ([]byte, error) {
		var v T
		if err := json.Unmarshal(cur, &v); err != nil {
			return nil, failure.Wrap(failure.KindStorage, err, "decode %s/%s", kind, id)
		}
		if err := fn(&v); err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, failure.Wrap(failure.KindStorage, err, "decode %s/%s", kind, id)
	}
	return result, nil
}

// NotFound converts ErrNotFound into a classified failure and passes other
// errors through.
func NotFound(err error, kind, id string) error {
	if errors.Is(err, ErrNotFound) {
		return failure.Wrap(failure.KindNotFound, err, "%s %s", kind, id)
	}
	return err
}

func encode(kind, id string, v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, failure.Wrap(failure.KindStorage, err, "encode %s/%s", kind, id)
	}
	return data, nil
}

func decode(kind, id string, data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return failure.Wrap(failure.KindStorage, err, "decode %s/%s", kind, id)
	}
	return nil
}

func storageErr(err error, op, kind, id string) error {
	if err == nil {
		return nil
	}
	var fe *failure.Error
	if errors.As(err, &fe) || errors.Is(err, ErrNotFound) {
		return err
	}
	return failure.Wrap(failure.KindStorage, err, "%s %s/%s", op, kind, id)
}
