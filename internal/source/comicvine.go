package source

import (
	"context"
	"strconv"

	"github.com/longbox-labs/entity-verify/internal/model"
	"github.com/longbox-labs/entity-verify/internal/namecanon"
	"github.com/longbox-labs/entity-verify/pkg/comicvine"
)

// ComicVineConfidence reflects trust in the Comic Vine catalog: licensed and
// editorially maintained, but community-editable around the edges.
const ComicVineConfidence = 0.90

// ComicVineAdapter normalizes Comic Vine character records.
type ComicVineAdapter struct {
	client comicvine.Client
}

// NewComicVineAdapter creates the Comic Vine adapter.
func NewComicVineAdapter(client comicvine.Client) *ComicVineAdapter {
	return &ComicVineAdapter{client: client}
}

func (a *ComicVineAdapter) Name() string { return "comic_vine" }

func (a *ComicVineAdapter) Confidence() float64 { return ComicVineConfidence }

func (a *ComicVineAdapter) Fetch(ctx context.Context, name string) (*model.SourceRecord, error) {
	var ch *comicvine.Character
	for _, variant := range namecanon.Variants(name) {
		var err error
		ch, err = a.client.FindCharacter(ctx, variant)
		if err != nil {
			return nil, err
		}
		if ch != nil {
			break
		}
	}
	if ch == nil {
		return nil, nil
	}

	fields := make(map[string]any)
	putNonEmpty(fields, model.FieldRealName, ch.RealName)
	biography := ch.Deck
	if biography == "" {
		biography = ch.Description
	}
	putNonEmpty(fields, model.FieldBiography, biography)
	putNonEmpty(fields, model.FieldFirstAppearance, ch.FirstAppearance)
	putNonEmpty(fields, model.FieldCreators, ch.Creators)
	putNonEmpty(fields, model.FieldTeams, ch.Teams)
	putNonEmpty(fields, model.FieldAllies, ch.Allies)
	putNonEmpty(fields, model.FieldEnemies, ch.Enemies)
	putNonEmpty(fields, model.FieldPowers, ch.Powers)
	putNonEmpty(fields, model.FieldImageURL, ch.ImageURL)
	putNonEmpty(fields, model.FieldExternalID, strconv.Itoa(ch.ID))
	putNonEmpty(fields, model.FieldPublisher, ch.Publisher)

	return &model.SourceRecord{
		Source:     a.Name(),
		Confidence: a.Confidence(),
		Fields:     fields,
	}, nil
}
