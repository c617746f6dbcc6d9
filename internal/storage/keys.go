package storage

import "fmt"

// Keys builds every object key the application uses. All keys are prefixed
// with the bucket name, which the original deployment used to share one
// physical bucket between environments; existing data depends on it.
type Keys struct {
	Bucket string
}

func NewKeys(bucket string) Keys { return Keys{Bucket: bucket} }

// Deck blobs and their index.

func (k Keys) DeckCSV(name string) string {
	return fmt.Sprintf("%s/csv/%s.csv", k.Bucket, name)
}

func (k Keys) CSVPrefix() string { return k.Bucket + "/csv/" }

func (k Keys) DeckIndex() string { return k.Bucket + "/csv/index.json" }

// Folder documents.

func (k Keys) FolderIndex() string { return k.Bucket + "/folders/index.json" }

func (k Keys) Parents() string { return k.Bucket + "/folders/parents.json" }

// Advisory order lists. The deck order is scoped per folder; the root
// scope is "root".

func (k Keys) OrderFolders() string { return k.Bucket + "/order/folders.json" }

func (k Keys) OrderDecks(scope string) string {
	return fmt.Sprintf("%s/order/decks/%s.json", k.Bucket, scope)
}

// TTS audio for single words and sentences.

func (k Keys) TTS(lang, segment string) string {
	return fmt.Sprintf("%s/tts/%s/%s.mp3", k.Bucket, lang, segment)
}

func (k Keys) TTSPrefix(lang string) string {
	return fmt.Sprintf("%s/tts/%s/", k.Bucket, lang)
}

// Generated example lines per deck.

func (k Keys) Lines(deck string) string {
	return fmt.Sprintf("%s/lines/%s.json", k.Bucket, deck)
}

// Stories and their audio.

func (k Keys) Story(deck string) string {
	return fmt.Sprintf("%s/stories/%s/story.json", k.Bucket, deck)
}

// LegacyStory is the flat layout older deployments wrote; delete paths
// still clear it.
func (k Keys) LegacyStory(deck string) string {
	return fmt.Sprintf("%s/stories/%s.json", k.Bucket, deck)
}

func (k Keys) StoryPrefix(deck string) string {
	return fmt.Sprintf("%s/stories/%s/", k.Bucket, deck)
}

func (k Keys) StoryAudio(deck, segment string) string {
	return fmt.Sprintf("%s/stories/%s/audio/%s.mp3", k.Bucket, deck, segment)
}

func (k Keys) StoryAudioPrefix(deck string) string {
	return fmt.Sprintf("%s/stories/%s/audio/", k.Bucket, deck)
}

func (k Keys) StoriesPrefix() string { return k.Bucket + "/stories/" }

func (k Keys) StoriesIndex() string { return k.Bucket + "/stories/index.json" }
