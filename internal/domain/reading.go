package domain

import "time"

// ReadSource tells how a story was chosen by the reader.
type ReadSource string

const (
	SourceRandom ReadSource = "random"
	SourceManual ReadSource = "manual"
)

// NormalizeReadSource maps anything other than "random" to manual.
func NormalizeReadSource(s string) ReadSource {
	if ReadSource(s) == SourceRandom {
		return SourceRandom
	}
	return SourceManual
}

// ReadLogEntry is one append-only row of the reading history. StoryTitle
// and CollectionName are only set when the store could join them.
type ReadLogEntry struct {
	ID             int64      `db:"id" json:"id"`
	StoryID        string     `db:"story_id" json:"story_id"`
	CollectionID   *string    `db:"collection_id" json:"collection_id,omitempty"`
	Source         ReadSource `db:"source" json:"source"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	StoryTitle     *string    `db:"story_title" json:"-"`
	CollectionName *string    `db:"collection_name" json:"-"`
}

const (
	// UnresolvedName is shown for reads whose story or collection is gone.
	UnresolvedName = "—"
	// UnresolvedStoryTitle is used in the ranking for deleted stories.
	UnresolvedStoryTitle = "Story"
)

type RecentRead struct {
	StoryID        string
	CollectionID   *string
	Title          string
	CollectionName string
	Source         ReadSource
	CreatedAt      time.Time
}

type StoryReadCount struct {
	StoryID   string
	Title     string
	ReadCount int
}

// ReadingReport is the periodic summary of the reading history.
type ReadingReport struct {
	GeneratedAt time.Time
	TotalReads  int
	Ranking     []StoryReadCount
	Recent      []RecentRead
	Duration    time.Duration
}
