package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const systemInfoQuery = `
query GetSystemInfo {
  info {
    os { platform distro release codename kernel arch hostname logofile serial build uptime }
    cpu { manufacturer brand vendor family model stepping revision voltage speed speedmin speedmax threads cores processors socket cache flags }
    memory { layout { bank type clockSpeed formFactor manufacturer partNum serialNum } }
    baseboard { manufacturer model version serial assetTag }
    system { manufacturer model version serial uuid sku }
    versions {
      core { unraid api kernel }
      packages { openssl node npm pm2 git nginx php docker }
    }
    machineId
    time
  }
}`

const arrayStatusQuery = `
query GetArrayStatus {
  array {
    id
    state
    capacity {
      kilobytes { free used total }
      disks { free used total }
    }
    boot { id idx name device size status rotational temp numReads numWrites numErrors fsSize fsFree fsUsed exportable type warning critical fsType comment format transport color }
    parities { id idx name device size status rotational temp numReads numWrites numErrors fsSize fsFree fsUsed exportable type warning critical fsType comment format transport color }
    disks { id idx name device size status rotational temp numReads numWrites numErrors fsSize fsFree fsUsed exportable type warning critical fsType comment format transport color }
    caches { id idx name device size status rotational temp numReads numWrites numErrors fsSize fsFree fsUsed exportable type warning critical fsType comment format transport color }
  }
}`

const networkConfigQuery = `
query GetNetworkConfig {
  network {
    id
    accessUrls { type name ipv4 ipv6 }
  }
}`

const registrationInfoQuery = `
query GetRegistrationInfo {
  registration {
    id
    type
    keyFile { location contents }
    state
    expiration
    updateExpiration
  }
}`

const connectSettingsQuery = `
query GetConnectSettingsForm {
  settings {
    unified { values }
  }
}`

const unraidVariablesQuery = `
query GetSelectiveUnraidVariables {
  vars {
    id version name timeZone comment security workgroup domain domainShort
    hideDotFiles localMaster enableFruit useNtp domainLogin sysModel sysFlashSlots
    useSsl port portssl localTld bindMgt useTelnet porttelnet useSsh portssh
    startPage startArray shutdownTimeout
    shareSmbEnabled shareNfsEnabled shareAfpEnabled shareCacheEnabled shareAvahiEnabled
    safeMode startMode configValid configError joinStatus deviceCount
    flashGuid flashProduct flashVendor
    mdState mdVersion
    shareCount shareSmbCount shareNfsCount shareAfpCount shareMoverActive
    csrfToken
  }
}`

func (s *Server) registerSystemTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_system_info",
		Description: "Comprehensive system, OS, CPU, memory, and software version information for the Unraid server.",
	}, s.handleGetSystemInfo)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_array_status",
		Description: "Current array state, capacity, and per-disk status for parity, data, cache, and boot devices.",
	}, s.handleGetArrayStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_network_config",
		Description: "Network configuration and access URLs for the Unraid server.",
	}, s.handleGetNetworkConfig)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_registration_info",
		Description: "Unraid license registration details: type, state, and expiration.",
	}, s.handleGetRegistrationInfo)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_connect_settings",
		Description: "Unraid Connect settings as a unified values document.",
	}, s.handleGetConnectSettings)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_unraid_variables",
		Description: "A curated set of Unraid system variables and tunables (share counts, md state, SMB/NFS flags, and similar).",
	}, s.handleGetUnraidVariables)
}

func (s *Server) handleGetSystemInfo(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	info, err := s.queryAndUnwrap(ctx, systemInfoQuery, "info", nil)
	if err != nil {
		return nil, nil, err
	}
	return rawToolResult(info)
}

func (s *Server) handleGetArrayStatus(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	arr, err := s.queryAndUnwrap(ctx, arrayStatusQuery, "array", nil)
	if err != nil {
		return nil, nil, err
	}
	return rawToolResult(arr)
}

func (s *Server) handleGetNetworkConfig(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	network, err := s.queryAndUnwrap(ctx, networkConfigQuery, "network", nil)
	if err != nil {
		return nil, nil, err
	}
	return rawToolResult(network)
}

func (s *Server) handleGetRegistrationInfo(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	reg, err := s.queryAndUnwrap(ctx, registrationInfoQuery, "registration", nil)
	if err != nil {
		return nil, nil, err
	}
	return rawToolResult(reg)
}

func (s *Server) handleGetConnectSettings(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	settings, err := s.queryAndUnwrap(ctx, connectSettingsQuery, "settings", nil)
	if err != nil {
		return nil, nil, err
	}
	return rawToolResult(settings)
}

func (s *Server) handleGetUnraidVariables(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	vars, err := s.queryAndUnwrap(ctx, unraidVariablesQuery, "vars", nil)
	if err != nil {
		return nil, nil, err
	}
	return rawToolResult(vars)
}
