package sim

import "time"

const (
	defaultTickRate    = 60
	snapshotEveryTicks = 3

	// mergeEveryTicks paces the instance-merge sweep; occupancy changes
	// slowly, so once per five seconds at the default rate is plenty.
	mergeEveryTicks = 300

	worldWidth  = 800.0
	worldHeight = 600.0

	moveSpeed = 200.0 // pixels per second

	projectileSpeed    = 500.0 // pixels per second
	projectileLifetime = 3.0   // seconds
	hitRadius          = 20.0
	minShootDistance   = 1.0

	projectileDamage = 20
	rollDamageFactor = 0.5

	rollDuration        = 0.5 // seconds
	rollCooldownSeconds = 2.0
	rollSpeedMultiplier = 1.8

	maxHealth    = 100
	respawnDelay = 3.0 // seconds
	spawnJitter  = 40.0

	lampRestoreSeconds = 5.0

	defaultSpawnX = worldWidth / 2
	defaultSpawnY = worldHeight / 2

	heartbeatInterval = 2 * time.Second
	disconnectAfter   = 3 * heartbeatInterval

	defaultMaxPlayersPerZone = 20
)
