package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name              string
		isTeamChannel     bool
		isChannelType     bool
		participantCount  int
		participantsKnown bool
		want              Kind
	}{
		{"two participants is direct", false, false, 2, true, KindDirect},
		{"three participants is group", false, false, 3, true, KindGroup},
		{"one participant is group", false, false, 1, true, KindGroup},
		{"unknown count defaults to group", false, false, 0, false, KindGroup},
		{"team channel wins over count", true, false, 2, true, KindChannel},
		{"channel type wins over count", false, true, 2, true, KindChannel},
		{"both channel flags", true, true, 5, true, KindChannel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Conversation{
				ID:            uuid.New(),
				IsTeamChannel: tt.isTeamChannel,
				IsChannelType: tt.isChannelType,
			}
			got := Classify(c, tt.participantCount, tt.participantsKnown)
			if got != tt.want {
				t.Fatalf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

// Каждая комбинация флагов и числа участников попадает ровно в одну из
// трех категорий
func TestClassifyExhaustive(t *testing.T) {
	counts := []int{0, 1, 2, 3, 10}
	for _, teamChannel := range []bool{false, true} {
		for _, channelType := range []bool{false, true} {
			for _, known := range []bool{false, true} {
				for _, count := range counts {
					c := &Conversation{IsTeamChannel: teamChannel, IsChannelType: channelType}
					kind := Classify(c, count, known)

					switch kind {
					case KindDirect, KindGroup, KindChannel:
					default:
						t.Fatalf("Classify returned unknown kind %q", kind)
					}

					if (teamChannel || channelType) && kind != KindChannel {
						t.Fatalf("channel flags set but kind = %s", kind)
					}
					if !teamChannel && !channelType && kind == KindChannel {
						t.Fatalf("no channel flags but kind = channel")
					}
					if !teamChannel && !channelType {
						if known && count == 2 && kind != KindDirect {
							t.Fatalf("expected direct for 2 known participants, got %s", kind)
						}
						if (!known || count != 2) && kind != KindGroup {
							t.Fatalf("expected group, got %s", kind)
						}
					}
				}
			}
		}
	}
}
