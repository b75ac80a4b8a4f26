package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/keshon/datastore"
)

const tracksHistoryLimit = 12

type Storage struct {
	ds *datastore.DataStore
}

type TrackRecord struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	RequestedBy string    `json:"requested_by"`
	PlayedAt    time.Time `json:"played_at"`
}

type Record struct {
	VolumePercent *int          `json:"volume_percent,omitempty"`
	TracksHistory []TrackRecord `json:"tracks_history"`
}

func New(filePath string) (*Storage, error) {
	ds, err := datastore.New(filePath)
	if err != nil {
		return nil, err
	}
	return &Storage{ds: ds}, nil
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

// getOrCreateGuildRecord fetches the guild's record, converting the stored
// map form back into a Record.
func (s *Storage) getOrCreateGuildRecord(guildID string) (*Record, error) {
	data, exists := s.ds.Get(guildID)
	if !exists {
		newRecord := &Record{TracksHistory: []TrackRecord{}}
		s.ds.Add(guildID, newRecord)
		return newRecord, nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("error marshalling data: %w", err)
	}

	var record Record
	if err := json.Unmarshal(jsonData, &record); err != nil {
		return nil, fmt.Errorf("error unmarshalling to *Record: %w", err)
	}

	if len(record.TracksHistory) > tracksHistoryLimit {
		record.TracksHistory = record.TracksHistory[len(record.TracksHistory)-tracksHistoryLimit:]
	}

	return &record, nil
}

// GetVolumePercent reports the persisted volume for a guild, or false when
// none was ever stored.
func (s *Storage) GetVolumePercent(guildID string) (int, bool) {
	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil || record.VolumePercent == nil {
		return 0, false
	}
	return *record.VolumePercent, true
}

func (s *Storage) SetVolumePercent(guildID string, percent int) error {
	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return err
	}

	record.VolumePercent = &percent
	s.ds.Add(guildID, record)
	return nil
}

// AppendTrackHistory records a played track, keeping only the most recent
// entries.
func (s *Storage) AppendTrackHistory(guildID, title, url, requestedBy string) error {
	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return err
	}

	record.TracksHistory = append(record.TracksHistory, TrackRecord{
		Title:       title,
		URL:         url,
		RequestedBy: requestedBy,
		PlayedAt:    time.Now(),
	})
	if len(record.TracksHistory) > tracksHistoryLimit {
		record.TracksHistory = record.TracksHistory[len(record.TracksHistory)-tracksHistoryLimit:]
	}

	s.ds.Add(guildID, record)
	return nil
}

func (s *Storage) FetchTrackHistory(guildID string) ([]TrackRecord, error) {
	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return nil, err
	}
	return record.TracksHistory, nil
}
