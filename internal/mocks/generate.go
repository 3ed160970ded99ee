// Package mocks provides gomock implementations of the core ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	subs := mocks.NewMockSubscriptionRepository(ctrl)
//	subs.EXPECT().GetByID(gomock.Any(), "sub-1").Return(sub, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_repository_mock.go github.com/target/intake-pipeline/internal/core JobRepository
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_repository_tx_mock.go github.com/target/intake-pipeline/internal/core JobRepositoryTx
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=subscription_repository_mock.go github.com/target/intake-pipeline/internal/core SubscriptionRepository
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=assessment_repository_mock.go github.com/target/intake-pipeline/internal/core AssessmentRepository
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=reaper_repository_mock.go github.com/target/intake-pipeline/internal/core ReaperRepository
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=cache_repository_mock.go github.com/target/intake-pipeline/internal/core CacheRepository

// Collaborator ports.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=crm_client_mock.go github.com/target/intake-pipeline/internal/core CRMClient
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=email_sender_mock.go github.com/target/intake-pipeline/internal/core EmailSender
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=report_generator_mock.go github.com/target/intake-pipeline/internal/core ReportGenerator
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=object_store_mock.go github.com/target/intake-pipeline/internal/core ObjectStore
