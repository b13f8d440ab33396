package wire

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	want := Envelope{
		Kind: KindToken,
		Payload: Token{
			SenderID:                  3,
			Flavor:                    1,
			LastModifiedByID:          3,
			LastModificationTimestamp: time.Unix(1_700_000_000, 0).UTC(),
			AvailableAmount:           4200,
		},
	}

	require.NoError(t, WriteFrame(&buf, want))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, want.Kind, got.Kind)
	require.Equal(t, want.Payload, got.Payload)
}

func TestReadFrameMultipleMessages(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, Envelope{Kind: KindElection, Payload: Election{SenderID: 1, CurrentCandidateID: 1}}))
	require.NoError(t, WriteFrame(&buf, Envelope{Kind: KindKill, Payload: Kill{}}))

	first, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, KindElection, first.Kind)

	second, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, KindKill, second.Kind)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	_, err := ReadFrame(&buf)
	require.Error(t, err)
}
