package source

import (
	"context"
	"strconv"

	"github.com/longbox-labs/entity-verify/internal/model"
	"github.com/longbox-labs/entity-verify/pkg/marvel"
)

// MarvelConfidence reflects trust in the first-party Marvel catalog. It is
// the publisher's own data, but only covers Marvel-owned entities.
const MarvelConfidence = 0.95

// MarvelAdapter normalizes Marvel API character records. Marvel's lookup is
// exact-name only, so no variant fallback is attempted.
type MarvelAdapter struct {
	client marvel.Client
}

// NewMarvelAdapter creates the Marvel adapter.
func NewMarvelAdapter(client marvel.Client) *MarvelAdapter {
	return &MarvelAdapter{client: client}
}

func (a *MarvelAdapter) Name() string { return "marvel" }

func (a *MarvelAdapter) Confidence() float64 { return MarvelConfidence }

func (a *MarvelAdapter) Fetch(ctx context.Context, name string) (*model.SourceRecord, error) {
	ch, err := a.client.FindCharacter(ctx, name)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, nil
	}

	fields := make(map[string]any)
	putNonEmpty(fields, model.FieldBiography, ch.Description)
	putNonEmpty(fields, model.FieldFirstAppearance, ch.FirstAppearance)
	putNonEmpty(fields, model.FieldTeams, ch.Series)
	putNonEmpty(fields, model.FieldImageURL, ch.ImageURL)
	putNonEmpty(fields, model.FieldExternalID, strconv.Itoa(ch.ID))
	fields[model.FieldPublisher] = "Marvel Comics"

	return &model.SourceRecord{
		Source:     a.Name(),
		Confidence: a.Confidence(),
		Fields:     fields,
	}, nil
}
