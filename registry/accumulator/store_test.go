package accumulator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilacorp/go-trust-registry/registry/dto"
	"github.com/pilacorp/go-trust-registry/registry/ledger"
	"github.com/pilacorp/go-trust-registry/registry/rerr"
)

var keyRef = dto.StorageRef{Owner: "did:example:issuer", Counter: 1}

func accumulatorID(b byte) dto.AccumulatorID {
	var id dto.AccumulatorID
	for i := range id {
		id[i] = b
	}
	return id
}

func maxSize(v uint64) *uint64 {
	return &v
}

func TestCreate(t *testing.T) {
	tests := []struct {
		name        string
		typ         Type
		accumulated []byte
		maxSize     *uint64
		expectError bool
		errorMsg    string
	}{
		{
			name:        "Positive accumulator",
			typ:         Positive,
			accumulated: []byte("d0"),
		},
		{
			name:        "Universal accumulator with max size",
			typ:         Universal,
			accumulated: []byte("d0"),
			maxSize:     maxSize(1024),
		},
		{
			name:        "Universal without max size",
			typ:         Universal,
			accumulated: []byte("d0"),
			expectError: true,
			errorMsg:    "requires max size",
		},
		{
			name:        "Positive with max size",
			typ:         Positive,
			accumulated: []byte("d0"),
			maxSize:     maxSize(1024),
			expectError: true,
			errorMsg:    "universal accumulators only",
		},
		{
			name:        "Empty accumulated value",
			typ:         Positive,
			accumulated: nil,
			expectError: true,
			errorMsg:    "accumulated value is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore(ledger.NewMemoryLedger())
			err := store.Create(context.Background(), accumulatorID(0x01), tt.typ, tt.accumulated, keyRef, tt.maxSize)

			if tt.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
				return
			}

			require.NoError(t, err)
			acc := store.Get(accumulatorID(0x01))
			require.NotNil(t, acc)
			assert.Equal(t, tt.typ, acc.Type)
			assert.Equal(t, acc.Created, acc.LastModified, "created and lastModified must match at creation")
		})
	}
}

func TestCreateOverActive(t *testing.T) {
	store := NewStore(ledger.NewMemoryLedger())
	id := accumulatorID(0x01)

	require.NoError(t, store.Create(context.Background(), id, Positive, []byte("d0"), keyRef, nil))
	err := store.Create(context.Background(), id, Positive, []byte("d1"), keyRef, nil)
	assert.ErrorIs(t, err, rerr.ErrAlreadyExists)
}

func TestUpdateShapes(t *testing.T) {
	tests := []struct {
		name        string
		delta       *Delta
		expectError bool
	}{
		{
			name:  "Full replace",
			delta: nil,
		},
		{
			name: "Additions with witness info",
			delta: &Delta{
				Additions:         [][]byte{[]byte("m1")},
				WitnessUpdateInfo: []byte("w"),
			},
		},
		{
			name: "Additions and removals with witness info",
			delta: &Delta{
				Additions:         [][]byte{[]byte("m1")},
				Removals:          [][]byte{[]byte("m2")},
				WitnessUpdateInfo: []byte("w"),
			},
		},
		{
			name: "Additions without witness info",
			delta: &Delta{
				Additions: [][]byte{[]byte("m1")},
			},
			expectError: true,
		},
		{
			name: "Removals without witness info",
			delta: &Delta{
				Removals: [][]byte{[]byte("m1")},
			},
			expectError: true,
		},
		{
			name:        "Empty delta",
			delta:       &Delta{WitnessUpdateInfo: []byte("w")},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore(ledger.NewMemoryLedger())
			id := accumulatorID(0x01)
			require.NoError(t, store.Create(context.Background(), id, Positive, []byte("d0"), keyRef, nil))

			err := store.ApplyUpdate(context.Background(), id, []byte("d1"), tt.delta)

			if tt.expectError {
				assert.ErrorIs(t, err, rerr.ErrInvalidDelta)
				acc := store.Get(id)
				assert.Equal(t, []byte("d0"), acc.Accumulated, "rejected update must not apply")
				assert.Empty(t, store.UpdatesSince(id, 0), "rejected update must not be logged")
				return
			}

			require.NoError(t, err)
			assert.Equal(t, []byte("d1"), store.Get(id).Accumulated)
		})
	}
}

func TestUpdateLogReplay(t *testing.T) {
	lgr := ledger.NewMemoryLedger()
	store := NewStore(lgr)
	id := accumulatorID(0x01)

	require.NoError(t, store.Create(context.Background(), id, Positive, []byte("d0"), keyRef, nil))
	creationSeq := lgr.Head()

	delta := &Delta{
		Additions:         [][]byte{[]byte("m1"), []byte("m2")},
		WitnessUpdateInfo: []byte("w1"),
	}
	require.NoError(t, store.ApplyUpdate(context.Background(), id, []byte("d1"), delta))

	updates := store.UpdatesSince(id, creationSeq)
	require.Len(t, updates, 1)
	assert.Equal(t, []byte("d1"), updates[0].NewAccumulated)
	assert.Equal(t, [][]byte{[]byte("m1"), []byte("m2")}, updates[0].Additions)
	assert.Nil(t, updates[0].Removals)
	assert.Equal(t, []byte("w1"), updates[0].WitnessUpdateInfo)

	// Replaying from a later point skips the entry.
	assert.Empty(t, store.UpdatesSince(id, updates[0].Seq+1))
}

func TestLastModifiedMonotonic(t *testing.T) {
	store := NewStore(ledger.NewMemoryLedger())
	id := accumulatorID(0x01)

	require.NoError(t, store.Create(context.Background(), id, Positive, []byte("d0"), keyRef, nil))
	created := store.Get(id).Created

	prev := store.Get(id).LastModified
	for i, digest := range [][]byte{[]byte("d1"), []byte("d2"), []byte("d3")} {
		require.NoError(t, store.ApplyUpdate(context.Background(), id, digest, nil))
		acc := store.Get(id)
		assert.Greater(t, acc.LastModified, prev, "update %d must advance lastModified", i)
		assert.Equal(t, created, acc.Created)
		prev = acc.LastModified
	}
}

func TestRemovePreservesLog(t *testing.T) {
	store := NewStore(ledger.NewMemoryLedger())
	id := accumulatorID(0x01)

	require.NoError(t, store.Create(context.Background(), id, Positive, []byte("d0"), keyRef, nil))
	require.NoError(t, store.ApplyUpdate(context.Background(), id, []byte("d1"), nil))
	require.NoError(t, store.Remove(context.Background(), id))

	assert.Nil(t, store.Get(id))
	assert.Len(t, store.UpdatesSince(id, 0), 1, "log must survive removal")

	// The state machine does not allow operating on an absent accumulator.
	assert.ErrorIs(t, store.ApplyUpdate(context.Background(), id, []byte("d2"), nil), rerr.ErrNotFound)
	assert.ErrorIs(t, store.Remove(context.Background(), id), rerr.ErrNotFound)
}

func TestUpdateAbsent(t *testing.T) {
	store := NewStore(ledger.NewMemoryLedger())
	err := store.ApplyUpdate(context.Background(), accumulatorID(0x01), []byte("d1"), nil)
	assert.ErrorIs(t, err, rerr.ErrNotFound)
}
