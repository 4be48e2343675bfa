// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and manages the luna client configuration.
//
// Configuration is TOML with sensible defaults and environment variable
// overrides for the backend endpoint and credential:
//   - ~/.luna/config.toml
//   - LUNA_BASE_URL, LUNA_API_TOKEN
package config
