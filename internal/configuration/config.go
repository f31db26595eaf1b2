package configuration

import (
	"encoding/json"
	"os"
)

type MongoConfig struct {
	Uri                     string `json:"uri"`
	Database                string `json:"database"`
	ConversationsCollection string `json:"conversationsCollection"`
	MessagesCollection      string `json:"messagesCollection"`
	PostsCollection         string `json:"postsCollection"`
	UsersCollection         string `json:"usersCollection"`
}

type ServerConfig struct {
	AppPort        int      `json:"app_port"`
	SocketPort     int      `json:"socket_port"`
	SocketRoute    string   `json:"socket_route"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type CloudinaryConfig struct {
	CloudName string `json:"cloud_name"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Enabled  bool   `json:"enabled"`
}

type CleanupConfig struct {
	IntervalSeconds int  `json:"interval_seconds"`
	Enabled         bool `json:"enabled"`
}

type Config struct {
	ChatDatabase MongoConfig      `json:"mongo"`
	Server       ServerConfig     `json:"server"`
	Cloudinary   CloudinaryConfig `json:"cloudinary"`
	Redis        RedisConfig      `json:"redis"`
	Cleanup      CleanupConfig    `json:"cleanup"`
}

func LoadConfig(config_path string) (*Config, error) {
	file, err := os.ReadFile(config_path)
	if err != nil {
		return nil, err
	}

	var config Config
	err = json.Unmarshal(file, &config)
	if err != nil {
		return nil, err
	}

	return &config, nil
}
