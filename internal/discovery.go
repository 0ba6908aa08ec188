package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sso"
)

// ssoAPI is the slice of the SSO portal client Discovery uses.
type ssoAPI interface {
	ListAccounts(ctx context.Context, params *sso.ListAccountsInput, optFns ...func(*sso.Options)) (*sso.ListAccountsOutput, error)
	ListAccountRoles(ctx context.Context, params *sso.ListAccountRolesInput, optFns ...func(*sso.Options)) (*sso.ListAccountRolesOutput, error)
	GetRoleCredentials(ctx context.Context, params *sso.GetRoleCredentialsInput, optFns ...func(*sso.Options)) (*sso.GetRoleCredentialsOutput, error)
}

// Discovery lists accounts and roles visible to a bearer token and exchanges
// the token for role credentials. Every call requires a non-expired token from
// the device-auth engine; callers gate on expiry before reaching here.
type Discovery struct {
	newClient func(region string) ssoAPI
}

func NewDiscovery() *Discovery {
	return &Discovery{newClient: newSsoClient}
}

func newSsoClient(region string) ssoAPI {
	return sso.New(sso.Options{
		Region:      region,
		Credentials: aws.AnonymousCredentials{},
		HTTPClient:  apiHTTPClient,
	})
}

// ListAccounts returns every account the token can see, following pagination
// until the portal stops returning a continuation token.
func (d *Discovery) ListAccounts(ctx context.Context, accessToken, ssoRegion string) ([]Account, error) {
	client := d.newClient(ssoRegion)
	var accounts []Account
	var nextToken *string
	for {
		out, err := client.ListAccounts(ctx, &sso.ListAccountsInput{
			AccessToken: aws.String(accessToken),
			NextToken:   nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list accounts: %w", err)
		}
		for _, info := range out.AccountList {
			accounts = append(accounts, Account{
				AccountID:    aws.ToString(info.AccountId),
				AccountName:  aws.ToString(info.AccountName),
				EmailAddress: aws.ToString(info.EmailAddress),
			})
		}
		if out.NextToken == nil || *out.NextToken == "" {
			return accounts, nil
		}
		nextToken = out.NextToken
	}
}

// ListRoles returns every role the token can assume in the given account.
func (d *Discovery) ListRoles(ctx context.Context, accessToken, ssoRegion, accountID string) ([]Role, error) {
	client := d.newClient(ssoRegion)
	var roles []Role
	var nextToken *string
	for {
		out, err := client.ListAccountRoles(ctx, &sso.ListAccountRolesInput{
			AccessToken: aws.String(accessToken),
			AccountId:   aws.String(accountID),
			NextToken:   nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list roles for account %s: %w", accountID, err)
		}
		for _, info := range out.RoleList {
			roles = append(roles, Role{
				RoleName:  aws.ToString(info.RoleName),
				AccountID: aws.ToString(info.AccountId),
			})
		}
		if out.NextToken == nil || *out.NextToken == "" {
			return roles, nil
		}
		nextToken = out.NextToken
	}
}

// GetRoleCredentials exchanges the bearer token for short-lived role
// credentials. A response missing any of the three credential fields is an
// error, never a partial result.
func (d *Discovery) GetRoleCredentials(ctx context.Context, accessToken, ssoRegion, accountID, roleName string) (*RoleCredentials, error) {
	client := d.newClient(ssoRegion)
	out, err := client.GetRoleCredentials(ctx, &sso.GetRoleCredentialsInput{
		AccessToken: aws.String(accessToken),
		AccountId:   aws.String(accountID),
		RoleName:    aws.String(roleName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get role credentials: %w", err)
	}
	rc := out.RoleCredentials
	if rc == nil || rc.AccessKeyId == nil || rc.SecretAccessKey == nil || rc.SessionToken == nil {
		return nil, errors.New("role credential response is missing credential fields")
	}
	return &RoleCredentials{
		AccessKeyID:     *rc.AccessKeyId,
		SecretAccessKey: *rc.SecretAccessKey,
		SessionToken:    *rc.SessionToken,
		Expiration:      time.UnixMilli(rc.Expiration),
	}, nil
}
