package store

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"dualdb/src/helpers"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// SnapshotStore persists table contents as BSON data files, one file
// per table.
type SnapshotStore interface {
	SaveTableFile(table string, rows []Row) error
	LoadTableFile(table string) ([]Row, error)
	TableFileExists(table string) bool
	RemoveTableFile(table string) error
}

type TableStorageEngine struct {
	DataDirectory string
	logger        *zap.SugaredLogger
}

func NewTableStore(dataDir string, logger *zap.SugaredLogger) (*TableStorageEngine, error) {
	// Create a new table store
	store := &TableStorageEngine{
		DataDirectory: dataDir,
		logger:        logger,
	}

	// Ensure the data directory exists
	if err := os.MkdirAll(store.DataDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", store.DataDirectory, err)
	}

	return store, nil
}

func (e *TableStorageEngine) tableFilePath(table string) string {
	return filepath.Join(e.DataDirectory, fmt.Sprintf("%s.tbl", table))
}

func (e *TableStorageEngine) TableFileExists(table string) bool {
	return helpers.FileExists(e.tableFilePath(table), *e.logger)
}

// SaveTableFile writes the rows of one table to its data file,
// replacing any previous contents.
func (e *TableStorageEngine) SaveTableFile(table string, rows []Row) error {
	filePath := e.tableFilePath(table)

	rowDocs := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		rowDocs = append(rowDocs, map[string]interface{}(row))
	}

	encoded, err := helpers.EncodeBSON(map[string]interface{}{
		"Table": table,
		"Rows":  rowDocs,
	})
	if err != nil {
		return fmt.Errorf("error encoding table data for '%s': %w", table, err)
	}

	file, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("error opening table data file %s: %w", filePath, err)
	}
	defer file.Close()

	fileLen, err := file.Write(encoded)
	if err != nil {
		return fmt.Errorf("error writing to table data file %s: %w", filePath, err)
	}
	if fileLen != len(encoded) {
		return fmt.Errorf("error writing to table data file %s: wrote %d bytes, expected %d", filePath, fileLen, len(encoded))
	}

	return nil
}

// LoadTableFile memory-maps a table data file and decodes its rows.
func (e *TableStorageEngine) LoadTableFile(table string) ([]Row, error) {
	file, err := helpers.OpenDataFile(e.DataDirectory, fmt.Sprintf("%s.tbl", table))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	// Get the file size
	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get file stats for table '%s': %w", table, err)
	}
	fileSize := int(stat.Size())
	if fileSize == 0 {
		return nil, nil
	}

	// Memory map the file
	data, err := unix.Mmap(int(file.Fd()), 0, fileSize, syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to memory map table file for '%s': %w", table, err)
	}
	defer unix.Munmap(data)

	decoded, err := helpers.DecodeBSON(data)
	if err != nil {
		return nil, fmt.Errorf("error decoding table data for '%s': %w", table, err)
	}

	rawRows, ok := decoded["Rows"]
	if !ok || rawRows == nil {
		return nil, nil
	}

	list, ok := rawRows.(primitive.A)
	if !ok {
		return nil, fmt.Errorf("table file for '%s' does not contain a valid Rows field", table)
	}

	rows := make([]Row, 0, len(list))
	for _, raw := range list {
		rowMap, err := asMap(raw)
		if err != nil {
			return nil, fmt.Errorf("table file for '%s': %w", table, err)
		}
		rows = append(rows, Row(rowMap))
	}

	return rows, nil
}

func (e *TableStorageEngine) RemoveTableFile(table string) error {
	filePath := e.tableFilePath(table)

	if !helpers.FileExists(filePath, *e.logger) {
		return fmt.Errorf("table data file for '%s' does not exist", table)
	}

	if err := helpers.DeleteDataFile(filePath); err != nil {
		return fmt.Errorf("error removing table data file for '%s': %w", table, err)
	}

	return nil
}

// asMap converts the shapes the BSON decoder produces for embedded
// documents into a plain map.
func asMap(v interface{}) (map[string]interface{}, error) {
	switch doc := v.(type) {
	case map[string]interface{}:
		return doc, nil
	case primitive.M:
		return map[string]interface{}(doc), nil
	case primitive.D:
		out := make(map[string]interface{}, len(doc))
		for _, elem := range doc {
			out[elem.Key] = elem.Value
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected row shape %T in table file", v)
}

// SaveSnapshot writes every table to the snapshot store.
func (s *Store) SaveSnapshot(engine SnapshotStore) error {
	for _, table := range s.schema.Order {
		rows, err := s.Rows(table)
		if err != nil {
			return err
		}
		if err := engine.SaveTableFile(table, rows); err != nil {
			return err
		}
	}
	return nil
}

// LoadSnapshot loads every table that has a data file, replacing the
// in-memory contents of those tables.
func (s *Store) LoadSnapshot(engine SnapshotStore) (int, error) {
	loaded := 0
	for _, table := range s.schema.Order {
		if !engine.TableFileExists(table) {
			continue
		}
		rows, err := engine.LoadTableFile(table)
		if err != nil {
			return loaded, err
		}
		if err := s.replaceAll(table, rows); err != nil {
			return loaded, err
		}
		loaded++
	}
	return loaded, nil
}

func (s *Store) replaceAll(table string, rows []Row) error {
	tbl, ok := s.schema.Table(table)
	if !ok {
		return fmt.Errorf("table '%s' does not exist", table)
	}

	fresh := make(map[string]Row, len(rows))
	for _, row := range rows {
		normalized, err := NormalizeRow(tbl, row)
		if err != nil {
			return fmt.Errorf("loading table '%s': %w", table, err)
		}
		ks, err := keyString(tbl, KeyOf(tbl, normalized))
		if err != nil {
			return fmt.Errorf("loading table '%s': %w", table, err)
		}
		fresh[ks] = normalized
	}

	s.mu.Lock()
	s.tables[table].rows = fresh
	s.mu.Unlock()

	return nil
}
