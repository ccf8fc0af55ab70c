package backend

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/gauthierbraillon/reelcast/internal/feed"
)

// seedWorkers bounds concurrent comment inserts while seeding.
const seedWorkers = 4

var demoAuthors = []feed.Author{
	{ID: "u-ada", DisplayName: "Ada"},
	{ID: "u-grace", DisplayName: "Grace"},
	{ID: "u-linus", DisplayName: "Linus"},
	{ID: "u-margaret", DisplayName: "Margaret"},
	{ID: "u-ken", DisplayName: "Ken"},
}

var demoMedia = []string{
	"https://storage.googleapis.com/gtv-videos-bucket/sample/BigBuckBunny.mp4",
	"https://storage.googleapis.com/gtv-videos-bucket/sample/ElephantsDream.mp4",
	"https://storage.googleapis.com/gtv-videos-bucket/sample/ForBiggerBlazes.mp4",
	"https://storage.googleapis.com/gtv-videos-bucket/sample/ForBiggerEscapes.mp4",
	"https://storage.googleapis.com/gtv-videos-bucket/sample/ForBiggerFun.mp4",
	"https://storage.googleapis.com/gtv-videos-bucket/sample/Sintel.mp4",
	"https://storage.googleapis.com/gtv-videos-bucket/sample/TearsOfSteel.mp4",
}

var demoCaptions = []string{
	"sunrise over the bay",
	"first try at the kickflip",
	"grandma's dumpling recipe",
	"the cat has opinions",
	"rainy day synth jam",
	"one take, no cuts",
}

var demoComments = []string{
	"this is great",
	"again!",
	"how did you do that",
	"saving this one",
}

// DemoItems returns n deterministic demo items.
func DemoItems(n int) []feed.Item {
	items := make([]feed.Item, n)
	for i := range items {
		id := fmt.Sprintf("demo-%03d", i)
		media := demoMedia[i%len(demoMedia)]
		items[i] = feed.Item{
			ID:           id,
			MediaURL:     media,
			ThumbnailURL: fmt.Sprintf("https://picsum.photos/seed/%s/360/640", id),
			Author:       demoAuthors[i%len(demoAuthors)],
			Caption:      demoCaptions[i%len(demoCaptions)],
			AudioTitle:   fmt.Sprintf("original sound - %s", demoAuthors[i%len(demoAuthors)].DisplayName),
			Counters: feed.Counters{
				Likes:  int64((i * 37) % 500),
				Shares: int64((i * 7) % 40),
			},
		}
	}
	return items
}

// Seed stores n demo items and a few comments on each. Items that already
// exist are left alone, so seeding twice is harmless. Returns the number of
// new items.
func Seed(ctx context.Context, store *Store, n int) (int, error) {
	items := DemoItems(n)
	added, err := store.SaveItems(ctx, items)
	if err != nil {
		return 0, fmt.Errorf("failed to seed items: %w", err)
	}
	if added == 0 {
		return 0, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(seedWorkers)
	for i, item := range items {
		g.Go(func() error {
			for j := 0; j < i%3; j++ {
				author := demoAuthors[(i+j+1)%len(demoAuthors)]
				text := demoComments[(i+j)%len(demoComments)]
				if _, err := store.AddComment(ctx, item.ID, author, text); err != nil {
					return fmt.Errorf("failed to seed comment on %s: %w", item.ID, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return added, err
	}

	return added, nil
}
