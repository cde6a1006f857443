// internal/pkg/nacos/client.go
package nacos

import (
	"strconv"
	"strings"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"github.com/pkg/errors"

	"nexus-settlement/internal/pkg/logger"
)

const DefaultGroup = "DEFAULT_GROUP"

// Client wraps the Nacos naming and config clients for one namespace and group.
type Client struct {
	namingClient naming_client.INamingClient
	configClient config_client.IConfigClient

	namespaceId string
	groupName   string
}

// ServerConfigs parses "ip1:port1,ip2:port2".
func ServerConfigs(addrs string) ([]constant.ServerConfig, error) {
	var serverConfigs []constant.ServerConfig
	for _, addr := range strings.Split(addrs, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		parts := strings.Split(addr, ":")
		if len(parts) != 2 {
			return nil, errors.Errorf("invalid nacos address format: %s", addr)
		}
		port, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, errors.Errorf("invalid port in nacos address: %s", parts[1])
		}
		serverConfigs = append(serverConfigs, *constant.NewServerConfig(parts[0], port))
	}
	if len(serverConfigs) == 0 {
		return nil, errors.New("no nacos server address")
	}
	return serverConfigs, nil
}

// ClientConfig is the SDK client configuration used by every service.
func ClientConfig(namespaceId string) constant.ClientConfig {
	return *constant.NewClientConfig(
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogDir("/tmp/nacos/log"),
		constant.WithCacheDir("/tmp/nacos/cache"),
		constant.WithLogLevel("warn"),
		constant.WithNamespaceId(namespaceId),
	)
}

// NewNacosClient connects both clients. addrs is "ip1:port1,ip2:port2".
func NewNacosClient(addrs string, namespaceId, groupName string) (*Client, error) {
	if namespaceId == "" {
		logger.Logger.Warn().Msg("NACOS_NAMESPACE is not set, using the public namespace")
	}
	if groupName == "" {
		groupName = DefaultGroup
	}

	serverConfigs, err := ServerConfigs(addrs)
	if err != nil {
		return nil, err
	}
	clientConfig := ClientConfig(namespaceId)
	param := vo.NacosClientParam{ClientConfig: &clientConfig, ServerConfigs: serverConfigs}

	namingClient, err := clients.NewNamingClient(param)
	if err != nil {
		return nil, errors.Wrap(err, "create nacos naming client")
	}
	configClient, err := clients.NewConfigClient(param)
	if err != nil {
		return nil, errors.Wrap(err, "create nacos config client")
	}

	logger.Logger.Info().Str("addrs", addrs).Str("group", groupName).Msg("connected to nacos")
	return &Client{
		namingClient: namingClient,
		configClient: configClient,
		namespaceId:  namespaceId,
		groupName:    groupName,
	}, nil
}

// RegisterServiceInstance registers an ephemeral instance.
func (c *Client) RegisterServiceInstance(serviceName, ip string, port int) error {
	success, err := c.namingClient.RegisterInstance(vo.RegisterInstanceParam{
		Ip:          ip,
		Port:        uint64(port),
		ServiceName: serviceName,
		Weight:      10,
		Enable:      true,
		Healthy:     true,
		Ephemeral:   true,
		GroupName:   c.groupName,
	})
	if err != nil {
		return errors.Wrap(err, "register service with nacos")
	}
	if !success {
		return errors.Errorf("nacos registration was not successful for service: %s", serviceName)
	}
	logger.Logger.Info().Str("service", serviceName).Str("ip", ip).Int("port", port).Msg("registered to nacos")
	return nil
}

func (c *Client) DeregisterServiceInstance(serviceName, ip string, port int) error {
	_, err := c.namingClient.DeregisterInstance(vo.DeregisterInstanceParam{
		Ip:          ip,
		Port:        uint64(port),
		ServiceName: serviceName,
		Ephemeral:   true,
		GroupName:   c.groupName,
	})
	if err != nil {
		return errors.Wrap(err, "deregister service with nacos")
	}
	logger.Logger.Info().Str("service", serviceName).Msg("deregistered from nacos")
	return nil
}

// DiscoverServiceInstance picks one healthy instance using Nacos' own balancing.
func (c *Client) DiscoverServiceInstance(serviceName string) (string, int, error) {
	instance, err := c.namingClient.SelectOneHealthyInstance(vo.SelectOneHealthInstanceParam{
		ServiceName: serviceName,
		GroupName:   c.groupName,
	})
	if err != nil {
		return "", 0, errors.Wrapf(err, "discover healthy instance for service %q", serviceName)
	}
	if instance == nil {
		return "", 0, errors.Errorf("no healthy instance available for service %q", serviceName)
	}
	return instance.Ip, int(instance.Port), nil
}

// GetConfig reads one config item.
func (c *Client) GetConfig(dataId string) (string, error) {
	content, err := c.configClient.GetConfig(vo.ConfigParam{DataId: dataId, Group: c.groupName})
	if err != nil {
		return "", errors.Wrapf(err, "get nacos config %s", dataId)
	}
	return content, nil
}

// ListenConfig calls onChange with the new content every time dataId changes.
func (c *Client) ListenConfig(dataId string, onChange func(content string)) error {
	err := c.configClient.ListenConfig(vo.ConfigParam{
		DataId: dataId,
		Group:  c.groupName,
		OnChange: func(namespace, group, dataId, data string) {
			logger.Logger.Info().Str("data_id", dataId).Msg("nacos config changed")
			onChange(data)
		},
	})
	return errors.Wrapf(err, "listen nacos config %s", dataId)
}

// Close stops the config client. Ephemeral naming instances expire on their own.
func (c *Client) Close() {
	if c.configClient != nil {
		c.configClient.CloseClient()
	}
}
