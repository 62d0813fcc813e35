package workers

import (
	"bytes"
	"fmt"
	"log"
	"path"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/linkedout/avatarbackend/media"
	"github.com/linkedout/avatarbackend/repository"
)

const headshotJpegQuality = 80

// HeadshotJob asks for a small square variant of a freshly saved avatar,
// used by feed and header surfaces.
type HeadshotJob struct {
	UserID         uint
	AvatarObjKey   string // stored avatar object key ({userID}/{filename})
	AvatarPhotoURL string
}

type HeadshotGenerator struct {
	JobQueue chan HeadshotJob
	Store    media.Store
	Profiles repository.ProfileRepository
	Size     int
	Wg       sync.WaitGroup
	StopChan chan struct{}
	Pending  map[string]bool
	Mutex    sync.Mutex
}

func NewHeadshotGenerator(store media.Store, profiles repository.ProfileRepository, size, queueSize, numWorkers int) *HeadshotGenerator {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	if size <= 0 {
		size = 48
	}

	gen := &HeadshotGenerator{
		JobQueue: make(chan HeadshotJob, queueSize),
		Store:    store,
		Profiles: profiles,
		Size:     size,
		StopChan: make(chan struct{}),
		Pending:  make(map[string]bool),
	}

	gen.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go gen.worker(i)
	}
	log.Printf("started %d headshot worker(s) with queue size %d", numWorkers, queueSize)

	return gen
}

func (hg *HeadshotGenerator) worker(id int) {
	defer hg.Wg.Done()
	log.Printf("headshot worker %d started", id)
	for {
		select {
		case job, ok := <-hg.JobQueue:
			if !ok {
				log.Printf("headshot worker %d stopping: Job queue closed", id)
				return
			}
			log.Printf("worker %d processing headshot for: %s", id, job.AvatarObjKey)
			if err := hg.processJob(job); err != nil {
				log.Printf("ERROR generating headshot for %s: %v", job.AvatarObjKey, err)
			}
			hg.Mutex.Lock()
			delete(hg.Pending, job.AvatarObjKey)
			hg.Mutex.Unlock()

		case <-hg.StopChan:
			log.Printf("headshot worker %d stopping: stop signal received", id)
			return
		}
	}
}

func (hg *HeadshotGenerator) processJob(job HeadshotJob) error {
	reader, _, err := hg.Store.Get(job.AvatarObjKey)
	if err != nil {
		return fmt.Errorf("avatar object missing: %w", err)
	}
	defer reader.Close()

	img, err := imaging.Decode(reader)
	if err != nil {
		return fmt.Errorf("failed to decode stored avatar: %w", err)
	}

	headshot := imaging.Fill(img, hg.Size, hg.Size, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, headshot, imaging.JPEG, imaging.JPEGQuality(headshotJpegQuality)); err != nil {
		return fmt.Errorf("failed to encode headshot: %w", err)
	}

	filename := path.Base(job.AvatarObjKey)
	userDir := fmt.Sprint(job.UserID)
	relPath, err := hg.Store.Save(media.AssetTypeHeadshot, userDir, filename, &buf, true)
	if err != nil {
		return fmt.Errorf("failed to save headshot: %w", err)
	}

	headshotURL := hg.Store.PublicURL(relPath)
	if err := hg.Profiles.SetPhotoRefs(job.UserID, job.AvatarPhotoURL, headshotURL); err != nil {
		return fmt.Errorf("failed to update headshot reference: %w", err)
	}

	log.Printf("successfully generated headshot and updated profile for: %s", job.AvatarObjKey)
	return nil
}

func (hg *HeadshotGenerator) QueueJob(job HeadshotJob) bool {
	hg.Mutex.Lock()
	if hg.Pending[job.AvatarObjKey] {
		hg.Mutex.Unlock()
		log.Printf("headshot generation for %s already pending, skipping queue", job.AvatarObjKey)
		return false
	}

	hg.Pending[job.AvatarObjKey] = true
	hg.Mutex.Unlock()

	select {
	case hg.JobQueue <- job:
		log.Printf("queued headshot generation for: %s", job.AvatarObjKey)
		return true
	default:
		log.Printf("WARNING: headshot job queue full, failed to queue job for: %s", job.AvatarObjKey)
		hg.Mutex.Lock()
		delete(hg.Pending, job.AvatarObjKey)
		hg.Mutex.Unlock()
		return false
	}
}

func (hg *HeadshotGenerator) Stop() {
	log.Println("stopping headshot generator...")
	close(hg.StopChan)
	hg.Wg.Wait()
	log.Println("all headshot workers stopped")
}
