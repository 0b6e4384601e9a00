package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nkissick-del/unraid-mcp/internal/graphql"
)

const defaultTailLines = 100

const sharesQuery = `
query GetSharesInfo {
  shares {
    id name free used size include exclude cache nameOrig comment
    allocator splitLevel floor cow color luksStatus
  }
}`

const notificationsOverviewQuery = `
query GetNotificationsOverview {
  notifications {
    overview {
      unread { info warning alert total }
      archive { info warning alert total }
    }
  }
}`

const listNotificationsQuery = `
query ListNotifications($filter: NotificationFilter!) {
  notifications {
    list(filter: $filter) {
      id title subject description importance link type timestamp formattedTimestamp
    }
  }
}`

const listLogFilesQuery = `
query ListLogFiles {
  logFiles {
    name path size modifiedAt
  }
}`

const logContentQuery = `
query GetLogContent($path: String!, $lines: Int) {
  logFile(path: $path, lines: $lines) {
    path content totalLines startLine
  }
}`

const listDisksQuery = `
query ListPhysicalDisksMinimal {
  disks {
    id device name
  }
}`

const diskDetailsQuery = `
query GetDiskDetails($id: PrefixedID!) {
  disk(id: $id) {
    id device name serialNum size temperature interfaceType smartStatus isSpinning
    partitions { name size type fsType }
  }
}`

type listNotificationsInput struct {
	Type       string `json:"type" jsonschema:"notification bucket to read: UNREAD or ARCHIVE"`
	Offset     int    `json:"offset,omitempty" jsonschema:"pagination offset (default 0)"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum notifications to return (default 20)"`
	Importance string `json:"importance,omitempty" jsonschema:"optional severity filter: INFO, WARNING, or ALERT"`
}

type getLogsInput struct {
	Path      string `json:"path" jsonschema:"path of the log file, as reported by list_log_files"`
	TailLines int    `json:"tail_lines,omitempty" jsonschema:"number of trailing lines to fetch (default 100)"`
}

type diskDetailsInput struct {
	DiskID string `json:"disk_id" jsonschema:"disk identifier, as reported by list_physical_disks"`
}

func (s *Server) registerStorageTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_shares_info",
		Description: "User shares with usage, caching, and allocation settings.",
	}, s.handleGetSharesInfo)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_notifications_overview",
		Description: "Unread and archived notification counts grouped by severity.",
	}, s.handleGetNotificationsOverview)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_notifications",
		Description: "Notifications from the UNREAD or ARCHIVE bucket, optionally filtered by importance.",
	}, s.handleListNotifications)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_log_files",
		Description: "Log files available for reading or streaming.",
	}, s.handleListLogFiles)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_logs",
		Description: "Tail of a single log file (default last 100 lines).",
	}, s.handleGetLogs)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_physical_disks",
		Description: "Physical disks recognized by the system. May take a while when disks are spun down.",
	}, s.handleListPhysicalDisks)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_disk_details",
		Description: "SMART status, temperature, and partition layout for one physical disk.",
	}, s.handleGetDiskDetails)
}

func (s *Server) handleGetSharesInfo(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	shares, err := s.queryAndUnwrap(ctx, sharesQuery, "shares", nil)
	if err != nil {
		return nil, nil, err
	}
	return rawToolResult(shares)
}

func (s *Server) handleGetNotificationsOverview(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	notifications, err := s.queryAndUnwrap(ctx, notificationsOverviewQuery, "notifications", nil)
	if err != nil {
		return nil, nil, err
	}
	overview, err := unwrapField(notifications, "overview")
	if err != nil {
		return nil, nil, err
	}
	return rawToolResult(overview)
}

func (s *Server) handleListNotifications(ctx context.Context, _ *mcp.CallToolRequest, input listNotificationsInput) (*mcp.CallToolResult, any, error) {
	bucket := strings.ToUpper(strings.TrimSpace(input.Type))
	if bucket != "UNREAD" && bucket != "ARCHIVE" {
		return nil, nil, fmt.Errorf("type must be UNREAD or ARCHIVE, got %q", input.Type)
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	filter := map[string]any{
		"type":   bucket,
		"offset": input.Offset,
		"limit":  limit,
	}
	// The API rejects a null importance, so only set it when given.
	if imp := strings.ToUpper(strings.TrimSpace(input.Importance)); imp != "" {
		filter["importance"] = imp
	}

	notifications, err := s.queryAndUnwrap(ctx, listNotificationsQuery, "notifications", map[string]any{"filter": filter})
	if err != nil {
		return nil, nil, err
	}
	list, err := unwrapField(notifications, "list")
	if err != nil {
		return nil, nil, err
	}
	return rawToolResult(list)
}

func (s *Server) handleListLogFiles(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	files, err := s.queryAndUnwrap(ctx, listLogFilesQuery, "logFiles", nil)
	if err != nil {
		return nil, nil, err
	}
	return rawToolResult(files)
}

func (s *Server) handleGetLogs(ctx context.Context, _ *mcp.CallToolRequest, input getLogsInput) (*mcp.CallToolResult, any, error) {
	path := strings.TrimSpace(input.Path)
	if path == "" {
		return nil, nil, fmt.Errorf("path is required")
	}
	lines := input.TailLines
	if lines <= 0 {
		lines = defaultTailLines
	}

	logFile, err := s.queryAndUnwrap(ctx, logContentQuery, "logFile", map[string]any{
		"path":  path,
		"lines": lines,
	})
	if err != nil {
		return nil, nil, err
	}
	return rawToolResult(logFile)
}

func (s *Server) handleListPhysicalDisks(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	// Spun-down disks can take tens of seconds to answer.
	disks, err := s.queryAndUnwrap(ctx, listDisksQuery, "disks", nil, graphql.WithTimeout(s.cfg.Timeouts.Disk()))
	if err != nil {
		return nil, nil, err
	}
	return rawToolResult(disks)
}

func (s *Server) handleGetDiskDetails(ctx context.Context, _ *mcp.CallToolRequest, input diskDetailsInput) (*mcp.CallToolResult, any, error) {
	diskID := strings.TrimSpace(input.DiskID)
	if diskID == "" {
		return nil, nil, fmt.Errorf("disk_id is required")
	}

	raw, err := s.queryAndUnwrap(ctx, diskDetailsQuery, "disk", map[string]any{"id": diskID},
		graphql.WithTimeout(s.cfg.Timeouts.Disk()))
	if err != nil {
		return nil, nil, err
	}

	var disk struct {
		ID            string          `json:"id"`
		Device        string          `json:"device"`
		Name          string          `json:"name"`
		SerialNum     string          `json:"serialNum"`
		Size          *int64          `json:"size"`
		Temperature   *int64          `json:"temperature"`
		InterfaceType string          `json:"interfaceType"`
		SmartStatus   string          `json:"smartStatus"`
		IsSpinning    *bool           `json:"isSpinning"`
		Partitions    []diskPartition `json:"partitions"`
	}
	if err := json.Unmarshal(raw, &disk); err != nil {
		return nil, nil, fmt.Errorf("decode disk details: %w", err)
	}

	var totalPartitionBytes int64
	for _, p := range disk.Partitions {
		if p.Size != nil {
			totalPartitionBytes += *p.Size
		}
	}

	temperature := "N/A"
	if disk.Temperature != nil {
		temperature = fmt.Sprintf("%d°C", *disk.Temperature)
	}

	summary := map[string]any{
		"disk_id":              disk.ID,
		"device":               disk.Device,
		"name":                 disk.Name,
		"serial_number":        disk.SerialNum,
		"size_formatted":       formatBytes(disk.Size),
		"temperature":          temperature,
		"interface_type":       disk.InterfaceType,
		"smart_status":         disk.SmartStatus,
		"is_spinning":          disk.IsSpinning,
		"partition_count":      len(disk.Partitions),
		"total_partition_size": formatBytes(&totalPartitionBytes),
	}

	return jsonToolResult(map[string]any{
		"summary":    summary,
		"partitions": disk.Partitions,
		"details":    json.RawMessage(raw),
	})
}

type diskPartition struct {
	Name   string `json:"name"`
	Size   *int64 `json:"size"`
	Type   string `json:"type"`
	FsType string `json:"fsType"`
}

// formatBytes renders a byte count in binary units for summaries.
func formatBytes(b *int64) string {
	if b == nil {
		return "N/A"
	}
	value := float64(*b)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB", "PB"} {
		if value < 1024.0 {
			return fmt.Sprintf("%.2f %s", value, unit)
		}
		value /= 1024.0
	}
	return fmt.Sprintf("%.2f EB", value)
}
