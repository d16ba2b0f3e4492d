package session

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CurrentSnapshotVersion is the current version of the snapshot format.
// Increment when making breaking changes to the format.
const CurrentSnapshotVersion = 1

// ErrSnapshotVersion is returned when a snapshot was written by an
// incompatible format version.
var ErrSnapshotVersion = errors.New("session: unsupported snapshot version")

// Stateful is implemented by views that control their own persisted form.
// Views that don't implement it are CBOR-encoded as a whole, which keeps
// exported fields only.
type Stateful interface {
	MarshalState() ([]byte, error)
	UnmarshalState(data []byte) error
}

// Snapshot is the persisted form of a session's root view.
type Snapshot struct {
	// Version is the serialization format version.
	Version int `cbor:"1,keyasint"`

	// View is the name the view was mounted under.
	View string `cbor:"2,keyasint"`

	// State is the view's encoded state.
	State []byte `cbor:"3,keyasint,omitempty"`
}

var (
	snapshotEnc cbor.EncMode
	snapshotDec cbor.DecMode
)

func init() {
	var err error
	// Core deterministic encoding: the same state always produces the same bytes.
	snapshotEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("session: CBOR encoder initialization failed: " + err.Error())
	}
	snapshotDec, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("session: CBOR decoder initialization failed: " + err.Error())
	}
}

// Serialize captures view's state under viewName.
func Serialize(viewName string, view any) ([]byte, error) {
	var (
		state []byte
		err   error
	)
	if s, ok := view.(Stateful); ok {
		state, err = s.MarshalState()
	} else {
		state, err = snapshotEnc.Marshal(view)
	}
	if err != nil {
		return nil, fmt.Errorf("session: encode %s state: %w", viewName, err)
	}

	return snapshotEnc.Marshal(&Snapshot{
		Version: CurrentSnapshotVersion,
		View:    viewName,
		State:   state,
	})
}

// Deserialize decodes a snapshot without restoring it.
func Deserialize(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := snapshotDec.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("session: decode snapshot: %w", err)
	}
	if snap.Version != CurrentSnapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrSnapshotVersion, snap.Version)
	}
	return &snap, nil
}

// Restore loads the snapshot's state into view, which must be a pointer.
func (s *Snapshot) Restore(view any) error {
	if st, ok := view.(Stateful); ok {
		return st.UnmarshalState(s.State)
	}
	if err := snapshotDec.Unmarshal(s.State, view); err != nil {
		return fmt.Errorf("session: restore %s state: %w", s.View, err)
	}
	return nil
}
