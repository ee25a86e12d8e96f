package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/rollcall/internal/rollcall/types"
	"github.com/BrandonDHaskell/rollcall/internal/wire"
)

func TestStructCarriesSubmission(t *testing.T) {
	in := types.SubmissionRequest{
		StudentID:         "150210001",
		Week:              5,
		DeviceFingerprint: "fp",
		HardwareSignature: "hw",
		Location:          &types.LatLng{Lat: 41.015137, Lng: 28.97953},
	}
	b, err := wire.Marshal(in)
	require.NoError(t, err)

	var out types.SubmissionRequest
	require.NoError(t, wire.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}

func TestFromStructRejectsUnknownFields(t *testing.T) {
	s, err := structpb.NewStruct(map[string]any{"student_id": "1", "shoe_size": 44})
	require.NoError(t, err)

	var out types.SubmissionRequest
	assert.Error(t, wire.FromStruct(s, &out))
}

func TestToStructNeedsAnObject(t *testing.T) {
	_, err := wire.ToStruct([]int{1, 2})
	assert.Error(t, err)
}
