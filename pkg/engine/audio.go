package engine

import (
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/hajimehoshi/ebiten/v2/audio"
	mp3 "github.com/hajimehoshi/go-mp3"
)

// TrackCallback receives the track metadata whenever a new ambient track
// starts.
type TrackCallback func(song, artist string)

// AmbientPlayer loops random MP3 tracks from a local directory with a
// fade-out at the end of each track and on shutdown. Missing directory or
// empty playlist is not an error; the player just retries.
type AmbientPlayer struct {
	dir        string
	onTrack    TrackCallback
	ctx        *audio.Context
	stopChan   chan struct{}
	doneChan   chan struct{}
	isStopping bool
}

func NewAmbientPlayer(dir string, onTrack TrackCallback) *AmbientPlayer {
	return &AmbientPlayer{
		dir:      dir,
		onTrack:  onTrack,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Shutdown fades the current track out and blocks until playback stops.
func (p *AmbientPlayer) Shutdown() {
	log.Println("Ambient player shutting down with fade-out...")
	p.isStopping = true
	close(p.stopChan)
	<-p.doneChan
}

func (p *AmbientPlayer) Start() {
	go func() {
		defer close(p.doneChan)
		for {
			select {
			case <-p.stopChan:
				return
			default:
			}

			var playlist []string
			err := filepath.Walk(p.dir, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && strings.HasSuffix(strings.ToLower(info.Name()), ".mp3") {
					playlist = append(playlist, path)
				}
				return nil
			})

			if err != nil || len(playlist) == 0 {
				if err != nil {
					log.Printf("Failed to read audio directory: %v", err)
				}
				select {
				case <-time.After(5 * time.Second):
				case <-p.stopChan:
					return
				}
				continue
			}

			path := playlist[rand.Intn(len(playlist))]
			if err := p.playTrack(path); err != nil {
				log.Printf("Failed to play track %s: %v", path, err)
				select {
				case <-time.After(5 * time.Second):
				case <-p.stopChan:
					return
				}
			}
			if p.isStopping {
				return
			}
		}
	}()
}

func (p *AmbientPlayer) playTrack(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	// Prefer embedded tags; fall back to "Artist - Title" filenames.
	var artist, song string
	if m, err := tag.ReadFrom(f); err == nil {
		artist = m.Artist()
		song = m.Title()
	}
	if song == "" {
		fullTitle := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		song = fullTitle
		if parts := strings.SplitN(fullTitle, " - ", 2); len(parts) == 2 {
			artist, song = parts[0], parts[1]
		}
	}
	if p.onTrack != nil {
		p.onTrack(song, artist)
	}

	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	d, err := mp3.NewDecoder(f)
	if err != nil {
		return err
	}

	if p.ctx == nil {
		p.ctx = audio.NewContext(44100)
	}
	player, err := p.ctx.NewPlayer(d)
	if err != nil {
		return err
	}
	player.Play()
	log.Printf("Playing: %s", path)

	fadeDuration := 5 * time.Second
	totalBytes := d.Length()
	duration := time.Duration(totalBytes) * time.Second / time.Duration(d.SampleRate()*4)
	startTime := time.Now()
	var stoppingAt time.Time
	for player.IsPlaying() {
		if p.isStopping && stoppingAt.IsZero() {
			stoppingAt = time.Now()
		}

		remaining := duration - time.Since(startTime)
		vol := 1.0
		if remaining <= fadeDuration {
			vol = float64(remaining) / float64(fadeDuration)
		}
		if !stoppingAt.IsZero() {
			stopVol := 1.0 - float64(time.Since(stoppingAt))/float64(fadeDuration)
			if stopVol < vol {
				vol = stopVol
			}
			if stopVol <= 0 {
				break
			}
		}
		if vol < 0 {
			vol = 0
		}
		player.SetVolume(vol)

		if remaining <= 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	player.Close()
	return nil
}
