package store

// This file contains the journal functionality for the store.
// Committed transactions are logged to the journal so that a data
// directory can be audited after the fact.

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// JournalEntry represents a single entry in the journal.
type JournalEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Op        string    `json:"op"`
	Table     string    `json:"table"`
	Details   string    `json:"details"`
}

// Journal represents the write journal for the store.
type Journal struct {
	Entries            []JournalEntry `json:"entries"`
	file               *os.File       // File handle for the journal file
	baseFilePath       string         // Base path for journal files (without date)
	currentDate        time.Time      // The date of the current journal file
	maxJournalFileSize int64
	currentSize        int64
}

// NewJournal creates a new journal instance.
func NewJournal(journalFilePath string, maxFileSize int64) (*Journal, error) {
	// Store the base file path (without date)
	baseFilePath := getBaseFilePath(journalFilePath)

	// Create a journal with today's date
	journal := &Journal{
		Entries:            []JournalEntry{},
		baseFilePath:       baseFilePath,
		currentDate:        time.Now().Truncate(24 * time.Hour), // Start with today's date
		maxJournalFileSize: maxFileSize,
	}

	// Open the current day's journal file
	if err := journal.ensureCorrectFileOpen(); err != nil {
		return nil, err
	}

	return journal, nil
}

// getBaseFilePath extracts the base path without date component
func getBaseFilePath(journalFilePath string) string {
	// If the path already contains a date pattern, remove it
	dir := filepath.Dir(journalFilePath)
	base := filepath.Base(journalFilePath)
	ext := filepath.Ext(journalFilePath)

	// Remove any existing date pattern (assuming YYYY-MM-DD format)
	baseName := strings.TrimSuffix(base, ext)
	datePattern := regexp.MustCompile(`_\d{4}-\d{2}-\d{2}$`)
	baseName = datePattern.ReplaceAllString(baseName, "")

	return filepath.Join(dir, baseName)
}

// ensureCorrectFileOpen ensures the correct journal file is open based on current date
func (j *Journal) ensureCorrectFileOpen() error {
	today := time.Now().Truncate(24 * time.Hour)

	// If we already have the correct file open, do nothing
	if j.file != nil && j.currentDate.Equal(today) {
		return nil
	}

	// Close the current file if it's open
	if j.file != nil {
		if err := j.file.Close(); err != nil {
			return fmt.Errorf("failed to close previous journal file: %w", err)
		}
		j.file = nil
	}

	// Create the filename with today's date
	dateStr := today.Format("2006-01-02")
	fileName := fmt.Sprintf("%s_%s%s", j.baseFilePath, dateStr, filepath.Ext(j.baseFilePath))
	if filepath.Ext(j.baseFilePath) == "" {
		fileName = fmt.Sprintf("%s_%s.journal", j.baseFilePath, dateStr)
	}

	// Ensure the directory exists
	dir := filepath.Dir(fileName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	// Open the new journal file
	file, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open journal file %s: %w", fileName, err)
	}

	// Update journal state
	j.file = file
	j.currentDate = today
	j.currentSize = 0

	return nil
}

// AddEntry adds a new entry to the journal.
func (j *Journal) AddEntry(op, table, details string) error {
	// Ensure the correct file is open based on current date
	if err := j.ensureCorrectFileOpen(); err != nil {
		return err
	}

	entry := JournalEntry{
		Timestamp: time.Now(),
		Op:        op,
		Table:     table,
		Details:   details,
	}

	j.Entries = append(j.Entries, entry)

	// Write the entry to the journal file
	line := fmt.Sprintf("%s | %s | %s | %s\n", entry.Timestamp.Format(time.RFC3339), entry.Op, entry.Table, entry.Details)
	if _, err := j.file.WriteString(line); err != nil {
		return fmt.Errorf("failed to write to journal file: %w", err)
	}
	// Update the current size of the journal file
	j.currentSize += int64(len(line))

	return nil
}

// Close closes the journal file.
func (j *Journal) Close() error {
	if j.file != nil {
		if err := j.file.Close(); err != nil {
			return fmt.Errorf("failed to close journal file: %w", err)
		}
		j.file = nil
	}
	return nil
}
