package config

type Config struct {
	DiscordAuth DiscordAuth `yaml:"discord_auth" validate:"required"`
	Storage     Storage     `yaml:"storage" validate:"required"`
	Meta        Meta        `yaml:"meta" validate:"required"`
}

type DiscordAuth struct {
	Token    string `yaml:"token" comment:"Discord bot token" validate:"required"`
	ClientID string `yaml:"client_id" comment:"Discord Client ID" validate:"required"`
}

// Guild configuration records and heat snapshots are stored here.
// Local storage writes through a temp-file-then-rename path; s3-like
// storage goes to a bucket such as DigitalOcean spaces.
type Storage struct {
	Type      string `yaml:"type" default:"local" comment:"Must be one of s3-like or local" validate:"required,oneof=s3-like local"`
	Path      string `yaml:"path" default:"data" comment:"If s3-like, the name of the bucket. Otherwise, the path to the location to store to" validate:"required"`
	Endpoint  string `yaml:"endpoint" comment:"Only for s3-like, the endpoint of the bucket"`
	Secure    bool   `yaml:"secure" comment:"Only for s3-like, whether or not to use a secure connection to the bucket"`
	AccessKey string `yaml:"access_key" comment:"Only for s3-like, the access key for the bucket"`
	SecretKey string `yaml:"secret_key" comment:"Only for s3-like, the secret key for the bucket"`
}

type Meta struct {
	Port             int    `yaml:"port" default:"8391" comment:"Port to run the admin API on" validate:"required"`
	RedisURL         string `yaml:"redis_url" comment:"Redis URL for heat snapshots. Leave empty to snapshot to storage instead"`
	SnapshotInterval int64  `yaml:"snapshot_interval" default:"300" comment:"Seconds between heat snapshot writes" validate:"required"`
	SweepInterval    int64  `yaml:"sweep_interval" default:"60" comment:"Seconds between maintenance sweeps" validate:"required"`
}
