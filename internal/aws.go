package internal

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// sdkCredentials converts store-owned credentials into the SDK's value type
// at the signing boundary. The copy is unavoidable there; the store's buffers
// remain the wipeable originals.
func sdkCredentials(creds *Credentials) aws.Credentials {
	return aws.Credentials{
		AccessKeyID:     creds.AccessKeyID(),
		SecretAccessKey: creds.SecretAccessKey(),
		SessionToken:    creds.SessionToken(),
	}
}

// stsCallerIdentity resolves the account and ARN behind a set of credentials.
func stsCallerIdentity(ctx context.Context, creds *Credentials, region string) (string, string, error) {
	client := sts.New(sts.Options{
		Region: region,
		Credentials: credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID(), creds.SecretAccessKey(), creds.SessionToken(),
		),
		HTTPClient: apiHTTPClient,
	})
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", "", fmt.Errorf("caller identity check failed: %w", err)
	}
	return aws.ToString(out.Account), aws.ToString(out.Arn), nil
}
