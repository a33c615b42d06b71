package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"dualdb/src/directors"
	"dualdb/src/schema"
	"dualdb/src/settings"
	"dualdb/src/store"
	"dualdb/src/views"

	"go.uber.org/zap"
)

const welcomeMessage = "dualdb ready"

// Server is the TCP front door: one line in, one JSON response out.
type Server struct {
	Host              string
	Port              int
	Listener          net.Listener
	ActiveConnections map[string]*Connection
	mu                sync.Mutex
	Running           bool

	store     *store.Store
	snapshots store.SnapshotStore
	journal   *store.Journal
	logger    *zap.SugaredLogger
}

// Connection represents an active client connection
type Connection struct {
	ID         string
	Conn       net.Conn
	Reader     *bufio.Reader
	Writer     *bufio.Writer
	LastActive time.Time
	Logger     *zap.SugaredLogger
}

// InitServer wires the whole stack: logging, schema, store, journal,
// snapshots and views, then the service singleton the command director
// runs against.
func InitServer(config *settings.Arguments) (*Server, error) {
	var logger *zap.Logger
	var err error

	if config.Debug {
		// Development configuration with more verbose output
		z := zap.NewDevelopmentConfig()
		z.OutputPaths = []string{"stdout"}
		logger, err = z.Build()
	} else {
		// Production configuration
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Create a sugared logger for easier API
	sugar := logger.Sugar()
	zap.ReplaceGlobals(logger)

	sch, err := schema.LoadSchemaFile(config.SchemaFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	sugar.Infow("Loaded schema", "file", config.SchemaFile, "tables", len(sch.Order))

	st := store.NewStore(sch, sugar)

	journal, err := store.NewJournal(filepath.Join(config.DataDir, "dualdb"), config.MaxJournalFileSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	st.WithJournal(journal)

	snapshots, err := store.NewTableStore(config.DataDir, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to create table store: %w", err)
	}

	loaded, err := st.LoadSnapshot(snapshots)
	if err != nil {
		return nil, fmt.Errorf("failed to load table snapshots: %w", err)
	}
	sugar.Infow("Loaded table snapshots", "rows", loaded)

	viewService := directors.NewViewService(st, sugar)
	if config.ViewsFile != "" {
		defs, err := views.LoadViewsFile(config.ViewsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load views: %w", err)
		}
		for _, def := range defs {
			if _, err := viewService.DefineView(def); err != nil {
				return nil, fmt.Errorf("failed to compile view '%s': %w", def.Name, err)
			}
		}
		sugar.Infow("Compiled duality views", "file", config.ViewsFile, "views", len(defs))
	}

	directors.InitServiceManager(st, viewService, sugar)

	return &Server{
		Host:              config.Host,
		Port:              config.Port,
		ActiveConnections: make(map[string]*Connection),
		store:             st,
		snapshots:         snapshots,
		journal:           journal,
		logger:            sugar,
	}, nil
}

// Start begins listening for incoming connections
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("error starting server on %s: %w", addr, err)
	}

	s.Listener = listener
	s.Running = true

	s.logger.Infof("dualdb server listening on %s", addr)

	go s.acceptConnections()

	return nil
}

var wg sync.WaitGroup

// Stop gracefully shuts down the server: connections drain, table
// snapshots are written, the journal closes.
func (s *Server) Stop() error {
	s.Running = false

	s.mu.Lock()
	for id, conn := range s.ActiveConnections {
		conn.Conn.Close()
		delete(s.ActiveConnections, id)
	}
	s.mu.Unlock()

	if s.Listener != nil {
		s.Listener.Close()
	}

	wg.Wait()

	if err := s.store.SaveSnapshot(s.snapshots); err != nil {
		s.logger.Warnf("Error saving table snapshots: %v", err)
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.logger.Warnf("Error closing journal: %v", err)
		}
	}

	s.logger.Info("Server shutdown complete")
	s.logger.Sync()

	return nil
}

// acceptConnections handles incoming connection requests
func (s *Server) acceptConnections() {
	for s.Running {
		conn, err := s.Listener.Accept()
		if err != nil {
			if s.Running { // Only log if we're still supposed to be running
				s.logger.Errorw("Error accepting connection", "error", err)
			}
			continue
		}
		wg.Add(1)

		s.logger.Infow("New connection received", "remoteAddr", conn.RemoteAddr().String())

		go func(c net.Conn) {
			defer wg.Done()
			s.handleConnection(c)
		}(conn)
	}
}

// handleConnection processes a single client connection: one command
// per line, one JSON response per command.
func (s *Server) handleConnection(conn net.Conn) {
	connID := generateConnectionID()
	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	connLogger := s.logger
	if settings.GetSettings().Debug {
		connLogger = connLogger.With(
			zap.String("connID", connID),
			zap.String("remoteAddr", conn.RemoteAddr().String()))
	}

	connection := &Connection{
		ID:         connID,
		Conn:       conn,
		Reader:     reader,
		Writer:     writer,
		LastActive: time.Now(),
		Logger:     connLogger,
	}

	s.mu.Lock()
	s.ActiveConnections[connID] = connection
	s.mu.Unlock()

	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.ActiveConnections, connID)
		s.mu.Unlock()
		connLogger.Infof("Connection closed: %s", connID)
		connLogger.Sync()
	}()

	writer.WriteString(welcomeMessage + "\n")
	writer.Flush()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		connection.LastActive = time.Now()
		connLogger.Infow("Received from client", "data", line)

		result, err := s.processCommand(connection, line)
		if err != nil {
			sendError(writer, err.Error())
		} else {
			sendResult(writer, result, connLogger)
		}
	}

	if err := scanner.Err(); err != nil {
		connLogger.Errorw("Error reading from client", "error", err)
	}
}

// processCommand routes a client command through the director.
func (s *Server) processCommand(conn *Connection, command string) (interface{}, error) {
	serviceManager := directors.GetServiceManager()
	return directors.CommandDirector(serviceManager, command, conn.Logger)
}

// Helper functions
func sendError(writer *bufio.Writer, message string) {
	response := map[string]interface{}{
		"status":  "error",
		"message": message,
	}
	jsonResponse, _ := json.Marshal(response)
	writer.WriteString(string(jsonResponse) + "\n")
	writer.Flush()
}

func sendResult(writer *bufio.Writer, result interface{}, logger *zap.SugaredLogger) {
	switch typedResult := result.(type) {
	case *string:
		if typedResult != nil {
			writer.WriteString(*typedResult + "\n")
			writer.Flush()
			return
		}
	case string:
		writer.WriteString(typedResult + "\n")
		writer.Flush()
		return
	default:
		data, _ := json.Marshal(result)
		logger.Debugf("Sending result: %s", data)
		writer.WriteString(string(data) + "\n")
		writer.Flush()
	}
}

func generateConnectionID() string {
	now := time.Now().UnixNano()
	return fmt.Sprintf("conn_%x", now)
}
