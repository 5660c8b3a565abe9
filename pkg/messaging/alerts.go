package messaging

import (
	"context"

	"ImpactRadar/pkg/model"
)

// AlertPublisher 把提醒发布到 alerts.<type>，由外部投递服务消费
type AlertPublisher struct {
	client *NATSClient
}

// NewAlertPublisher 创建提醒发布端
func NewAlertPublisher(client *NATSClient) *AlertPublisher {
	return &AlertPublisher{client: client}
}

// AlertSubject 提醒类型对应的主题
func AlertSubject(t model.AlertType) string {
	return alertsSubjectPrefix + string(t)
}

// PublishAlert 发布提醒
func (p *AlertPublisher) PublishAlert(ctx context.Context, alert *model.Alert) error {
	return p.client.Publish(ctx, AlertSubject(alert.Type), alert)
}
