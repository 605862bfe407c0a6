package recording_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"goa.design/harness/recording"
	"goa.design/harness/signal"
)

// buildRecording constructs a Recording whose signals are plain text
// deltas, for the fidelity/determinism properties below.
func buildRecording(chunks []string) recording.Recording {
	rec := recording.Recording{ID: "rec"}
	for _, c := range chunks {
		rec.Signals = append(rec.Signals, signal.New("harness:text:delta", c))
	}
	rec.Signals = append(rec.Signals, signal.New("harness:end", nil))
	return rec
}

func TestRecordingFidelityAndReplayDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	chunkGen := gen.SliceOfN(5, gen.RegexMatch(`[a-zA-Z]{1,4}`))

	properties.Property("stepping through every signal reconstructs the recording in order", prop.ForAll(
		func(chunks []string) bool {
			rec := buildRecording(chunks)
			p := recording.NewPlayer(rec)
			var replayed []signal.Signal
			for {
				s, ok := p.Step()
				if !ok {
					break
				}
				replayed = append(replayed, s)
			}
			if len(replayed) != len(rec.Signals) {
				return false
			}
			for i := range replayed {
				if replayed[i].Name != rec.Signals[i].Name {
					return false
				}
			}
			return true
		},
		chunkGen,
	))

	properties.Property("snapshot folding is deterministic across repeated replays", prop.ForAll(
		func(chunks []string) bool {
			rec := buildRecording(chunks)
			p1 := recording.NewPlayer(rec)
			p1.FastForward()
			p2 := recording.NewPlayer(rec)
			p2.FastForward()
			return p1.Snapshot() == p2.Snapshot()
		},
		chunkGen,
	))

	properties.Property("snapshot text is the concatenation of every delta chunk in order", prop.ForAll(
		func(chunks []string) bool {
			rec := buildRecording(chunks)
			p := recording.NewPlayer(rec)
			p.FastForward()
			want := ""
			for _, c := range chunks {
				want += c
			}
			return p.Snapshot().Text == want
		},
		chunkGen,
	))

	properties.TestingRun(t)
}
