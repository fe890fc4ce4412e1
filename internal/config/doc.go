// Package config defines configuration structures for the rangecheck CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (RANGECHECK_ prefix)
//   - YAML configuration file
//
// Later sources win: defaults, then the file, then the environment, then
// flags. Byte sizes accept human-readable strings such as "32MiB" or "1GB".
//
// # Example
//
//	url: https://storage.example.com/backups/disk.img
//	file: /var/lib/images/disk.img
//	block_size: 64MiB
//	workers: 32
//	retry:
//	  attempts: 8
//	  backoff: 2s
//	  policy: exponential
package config
