package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	// SpoolDir is overridden at startup via ConfigureFailover; the
	// default only matters for tests that never configure it.
	SpoolDir           = "data/audit_spool"
	MaxSpoolSize int64 = 1024 * 1024 * 1024 // 1GB
)

const spoolFile = "audit_spool.log"

func ConfigureFailover(dir string, maxMB int64) {
	if dir != "" {
		SpoolDir = dir
	}
	if maxMB > 0 {
		MaxSpoolSize = maxMB * 1024 * 1024
	}
	_ = os.MkdirAll(SpoolDir, 0750)
}

// SpoolEvent appends evt to the local JSONL spool for later replay.
func SpoolEvent(evt AuditEvent) error {
	if spoolSize() >= MaxSpoolSize {
		return fmt.Errorf("audit spool full (%d bytes)", MaxSpoolSize)
	}

	line, err := json.Marshal(FailoverEvent{
		EventID:   evt.EventID.String(),
		TenantID:  evt.TenantID.String(),
		Payload:   evt,
		Timestamp: time.Now(),
	})
	if err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(SpoolDir, spoolFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(line, '\n'))
	return err
}

func spoolSize() int64 {
	var size int64
	filepath.Walk(SpoolDir, func(_ string, info fs.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}

// StartReplayer periodically drains the spool back into the database.
func (s *Service) StartReplayer(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.ReplaySpool(ctx)
			}
		}
	}()
}

var replayLock sync.Mutex

// ReplaySpool renames the spool aside and re-submits every line through
// WriteEvent. An event whose insert still fails is re-spooled by
// WriteEvent itself, so nothing is lost if the database is still down —
// it just waits for the next cycle.
func (s *Service) ReplaySpool(ctx context.Context) {
	replayLock.Lock()
	defer replayLock.Unlock()

	current := filepath.Join(SpoolDir, spoolFile)
	info, err := os.Stat(current)
	if os.IsNotExist(err) || (err == nil && info.Size() == 0) {
		return
	}

	replayFile := filepath.Join(SpoolDir, fmt.Sprintf("replay_%d.log", time.Now().UnixNano()))
	if err := os.Rename(current, replayFile); err != nil {
		log.Printf("audit: failed to rotate spool for replay: %v", err)
		return
	}

	f, err := os.Open(replayFile)
	if err != nil {
		return
	}
	defer f.Close()

	var flushed int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var fe FailoverEvent
		if err := json.Unmarshal(scanner.Bytes(), &fe); err != nil {
			continue
		}
		if err := s.WriteEvent(ctx, fe.Payload); err == nil {
			flushed++
		}
	}

	f.Close()
	os.Remove(replayFile)

	if flushed > 0 {
		log.Printf("audit: replayed %d spooled events", flushed)
	}
}
