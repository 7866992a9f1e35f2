package config

import (
	"time"

	"HealthSentinel/internal/model"
)

// Default returns the reference configuration. Files and env vars override it.
func Default() *Config {
	cfg := &Config{}

	cfg.Source.Kind = "file"
	cfg.Source.Path = "data/customers.json"
	cfg.Source.RatePerSecond = 20
	cfg.Source.Burst = 5
	cfg.Source.Timeout = 15 * time.Second
	cfg.Source.Breaker = BreakerConfig{
		MaxRequests:  1,
		Interval:     time.Minute,
		OpenTimeout:  30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}

	cfg.Engine.Concurrency = 8
	cfg.Engine.CustomerTimeout = 10 * time.Second
	cfg.Engine.WindowDays = 30
	cfg.Engine.Features = map[model.FeatureCategory]int{
		model.FeatureCore:        10,
		model.FeatureAdvanced:    8,
		model.FeatureIntegration: 5,
	}

	cfg.Dimensions = Dimensions{
		Usage: UsageParams{TargetSessions: 30, TargetMinutes: 60, SessionWeight: 0.6},
		Engagement: EngagementParams{
			ParticipationWeight: 0.85,
			OnboardingBonus:     0.15,
		},
		Support: SupportParams{
			PriorityWeights: map[model.TicketPriority]float64{
				model.PriorityLow:    0.5,
				model.PriorityMedium: 1,
				model.PriorityHigh:   2,
				model.PriorityUrgent: 3,
			},
			PerTicketPenalty: 0.05,
			MaxVolumePenalty: 0.7,
			TargetHours:      24,
			DelayScaleHours:  72,
			MaxDelayPenalty:  0.3,
		},
		Payment: PaymentParams{
			StatusScores: map[model.PaymentStatus]float64{
				model.PaymentCurrent: 1.0,
				model.PaymentLate:    0.6,
				model.PaymentOverdue: 0.3,
				model.PaymentFailed:  0.0,
			},
			RenewalPenalty: 0.1,
		},
		Adoption:     AdoptionParams{CoreWeight: 0.2, AdvancedWeight: 0.4, IntegrationWeight: 0.4},
		Satisfaction: SatisfactionParams{NPSMax: 10, CSATMin: 1, CSATMax: 5},
		Lifecycle:    LifecycleParams{Floor: 0.2, PlateauFraction: 0.5, MaxPlateauDays: 365},
		Value:        ValueParams{RankWeight: 0.8},
	}

	cfg.Scoring = ScoringConfig{
		DefaultSegment: model.SegmentMidMarket,
		Profiles: map[model.Segment]map[model.Dimension]float64{
			model.SegmentEnterprise: {
				model.DimUsage: 0.15, model.DimEngagement: 0.10, model.DimSupport: 0.15, model.DimPayment: 0.20,
				model.DimAdoption: 0.15, model.DimSatisfaction: 0.15, model.DimLifecycle: 0.05, model.DimValue: 0.05,
			},
			model.SegmentMidMarket: {
				model.DimUsage: 0.20, model.DimEngagement: 0.15, model.DimSupport: 0.15, model.DimPayment: 0.15,
				model.DimAdoption: 0.15, model.DimSatisfaction: 0.10, model.DimLifecycle: 0.05, model.DimValue: 0.05,
			},
			model.SegmentStartup: {
				model.DimUsage: 0.25, model.DimEngagement: 0.20, model.DimSupport: 0.10, model.DimPayment: 0.10,
				model.DimAdoption: 0.20, model.DimSatisfaction: 0.10, model.DimLifecycle: 0.03, model.DimValue: 0.02,
			},
		},
	}

	cfg.Bands = []Band{
		{Label: model.LabelCritical, Min: 0, Max: 0.3},
		{Label: model.LabelAtRisk, Min: 0.3, Max: 0.6},
		{Label: model.LabelGood, Min: 0.6, Max: 0.8},
		{Label: model.LabelExcellent, Min: 0.8, Max: 1},
	}

	cfg.Alerts = AlertParams{
		CriticalThreshold: 0.3,
		UsageFloor:        0.4,
		LoginMediumDays:   14,
		LoginHighDays:     30,
		SegmentLoginMultiplier: map[model.Segment]float64{
			model.SegmentEnterprise: 1.5,
			model.SegmentStartup:    0.7,
		},
		ExpansionValueMin:      0.7,
		ExpansionAdoptionMin:   0.7,
		UsageDeclineFloor:      0.2,
		UsageDrop:              0.15,
		SupportTicketThreshold: 5,
		SegmentTicketMultiplier: map[model.Segment]float64{
			model.SegmentEnterprise: 1.5,
			model.SegmentStartup:    0.8,
		},
		OnboardingGraceDays: 30,
		Cooldown:            2 * time.Hour,
	}

	cfg.Actions = ActionParams{TopN: 3, HighValueMRR: 10000}
	cfg.Queue = QueueParams{Size: 50, TenureMonths: 24}
	cfg.Trend = TrendParams{LookbackDays: 30, ToleranceDays: 3, Epsilon: 0.02, Points: 3, HorizonDays: 30}
	cfg.History = HistoryConfig{Backend: "sqlite", RetentionDays: 180}
	cfg.Database.SQLitePath = "data/health_sentinel.db"
	cfg.Redis.LockTTL = 30 * time.Second
	cfg.Kafka.Topic = "customer-health"
	cfg.Telegram.MinSeverity = model.SeverityHigh
	cfg.HTTP.Addr = ":8080"
	cfg.Schedule.RunCron = "0 0 6 * * *"
	cfg.Schedule.PruneCron = "0 30 3 * * *"
	cfg.Logging.Level = "info"
	cfg.StateFile = "data/last_run.json"

	return cfg
}
