// Package device is the device registry: it records which fingerprints an account
// has authenticated from and what trust state each binding is in.
//
// # Overview
//
// The device package provides:
//   - Bindings of (account, fingerprint) with trust state new, trusted or revoked
//   - An atomic upsert that decides the initial state of a first-seen device
//   - Pluggable trust policies (first device, login count)
//   - One-time confirmation codes that promote a new device to trusted
//
// # Basic Usage
//
//	import "github.com/tendant/simple-device-auth/pkg/device"
//
//	repo := device.NewPostgresRepository(pool)
//	service := device.NewService(
//		repo,
//		device.WithTrustPolicy(device.FirstDevicePolicy{}),
//	)
//
//	binding, err := service.RecordBinding(ctx, accountID, fingerprint)
//	switch service.EvaluateTrust(binding) {
//	case device.TrustStateRevoked:
//		// reject
//	case device.TrustStateNew:
//		// ask the owner to confirm the device
//	}
//
// # Trust states
//
// The first binding an account ever gets is trusted. Every later binding starts
// as new. Revocation is terminal: a revoked binding never becomes trusted again.
//
// Fingerprints are supplied by the client and are not secrets. Possession of
// a fingerprint proves nothing on its own; it only scopes credentials and tokens.
package device
