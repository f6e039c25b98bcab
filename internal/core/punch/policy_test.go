package punch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"punchclock.service/internal/core/model"
)

func kindPtr(k model.PunchKind) *model.PunchKind { return &k }

func TestDefaultTransitionTable(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		prev *model.PunchKind
		want []model.PunchKind
	}{
		{nil, []model.PunchKind{model.KindIn}},
		{kindPtr(model.KindOut), []model.PunchKind{model.KindIn}},
		{kindPtr(model.KindIn), []model.PunchKind{model.KindOutside, model.KindOut}},
		{kindPtr(model.KindOutside), []model.PunchKind{model.KindReturn}},
		{kindPtr(model.KindReturn), []model.PunchKind{model.KindOutside, model.KindOut}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Next(tt.prev))
	}
}

func TestCheckRejectsUnknownKind(t *testing.T) {
	err := DefaultPolicy().Check(nil, model.Punch{Kind: "LUNCH"})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}
